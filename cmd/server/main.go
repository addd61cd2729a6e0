package main

import (
	"github.com/schemalens/schemalens/internal/server"
	"github.com/schemalens/schemalens/internal/util"
	"github.com/schemalens/schemalens/pkg/logger"
	"github.com/schemalens/schemalens/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
