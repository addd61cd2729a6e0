package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schemalens/schemalens/internal/queue"
	"github.com/schemalens/schemalens/internal/server"
	"github.com/schemalens/schemalens/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/schemalens/schemalens/pkg/builder"
	cachepgx "github.com/schemalens/schemalens/pkg/graphcache/pgx"
	"github.com/schemalens/schemalens/pkg/leaselock"
	"github.com/schemalens/schemalens/pkg/logger"
	"github.com/schemalens/schemalens/pkg/logger/console"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxRetries   = 10
	cleanupEvery = time.Hour
	cleanupOlder = time.Hour
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init metadata source
	provider, err := server.NewMetadataProvider(ctx)
	if err != nil {
		logger.Fatal("Unable to connect to metadata source", "err", err)
	}
	defer provider.Close()

	store := cachepgx.NewGraphCacheStore(pgConn)
	locker := &builder.LeaseLocker{Client: leaselock.New(pgConn)}
	rebuilder := server.NewRebuilder(provider, pgConn, locker)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.RebuildQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	// One rebuild at a time; the lease lock already serializes per key, the
	// prefetch keeps this worker from hoarding messages it cannot run yet.
	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.RebuildQueue,
		"rebuild_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.RebuildQueue, "err", err)
	}

	// Periodic sweep of abandoned rebuilds, independent of queue traffic.
	go func() {
		ticker := time.NewTicker(cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := store.CleanupStale(ctx, cleanupOlder)
				if err != nil {
					logger.Error("Failed to clean up stale ontologies", "err", err)
					continue
				}
				if removed > 0 {
					logger.Info("Removed stale ontologies", "count", removed)
				}
			}
		}
	}()

	logger.Info("Listening for messages")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed")
				return
			}

			startTime := time.Now()
			logger.Info("Received message", "queue", queue.RebuildQueue)

			processingErr := queue.ProcessRebuildMessage(ctx, rebuilder, store, string(msg.Body))
			if processingErr != nil {
				logger.Error("Error processing message", "queue", queue.RebuildQueue, "err", processingErr)
				handleProcessingError(consumerCh, msg, queue.RebuildQueue)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", queue.RebuildQueue)
			}

			logger.Info("Processing time", "duration", time.Since(startTime).Round(time.Second))
			logger.Info("Waiting for next message")
		}
	}
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// Exhausted messages go to the dead-letter queue.
	if retries >= maxRetries {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
