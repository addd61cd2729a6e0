package leaselock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrBusy reports that the lock is held by another owner and has not expired.
var ErrBusy = errors.New("lease lock busy")

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client acquires TTL-scoped advisory leases backed by the graph_locks table.
// The TTL bounds how long a crashed holder can block the key; there is no
// renewal, so TTL must exceed the longest expected hold.
type Client struct {
	db dbConn
}

type Options struct {
	TTL         time.Duration
	TokenPrefix string
}

type Lease struct {
	Key   string
	Token string

	client *Client
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{db: pool}
}

// NewWithConn creates a client on any connection-like handle.
func NewWithConn(db dbConn) *Client {
	return &Client{db: db}
}

// WithLease runs fn while holding the lease for key, releasing it afterwards.
// Returns ErrBusy without running fn when the key is already held.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.Background())
	}()
	return fn(ctx)
}

// Acquire takes the lease for key, stealing it if the previous holder's TTL
// has expired. Returns ErrBusy when the key is held and alive.
func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}

	tok, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := opts.TokenPrefix + tok

	var returnedKey string
	err = c.db.QueryRow(ctx, tryAcquireSQL, key, token, opts.TTL.Milliseconds()).Scan(&returnedKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusy
		}
		return nil, err
	}

	return &Lease{
		Key:    key,
		Token:  token,
		client: c,
	}, nil
}

// Release drops the lease if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

const tryAcquireSQL = `
INSERT INTO graph_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE graph_locks.expires_at < now()
   OR graph_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM graph_locks
WHERE lock_key = $1 AND locked_by = $2;
`
