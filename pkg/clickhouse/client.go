package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type Option func(*clickhouse.Options)

func WithAddr(host string, port int) Option {
	return func(o *clickhouse.Options) {
		o.Addr = []string{net.JoinHostPort(host, strconv.Itoa(port))}
	}
}

func WithAuth(database, user, password string) Option {
	return func(o *clickhouse.Options) {
		o.Auth = clickhouse.Auth{Database: database, Username: user, Password: password}
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) Option {
	return func(o *clickhouse.Options) {
		if on {
			o.Protocol = clickhouse.HTTP
		}
	}
}

func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(o *clickhouse.Options) {
		o.MaxOpenConns, o.MaxIdleConns, o.ConnMaxLifetime = maxOpen, maxIdle, lifetime
	}
}

func WithTimeouts(dial, read time.Duration) Option {
	return func(o *clickhouse.Options) {
		o.DialTimeout, o.ReadTimeout = dial, read
	}
}

// WithAsyncInsert lets the server buffer small inserts, which suits the
// one row per minute bar archive.
func WithAsyncInsert(on, wait bool) Option {
	return func(o *clickhouse.Options) {
		if !on {
			return
		}
		o.Settings["async_insert"] = 1
		if wait {
			o.Settings["wait_for_async_insert"] = 1
		}
	}
}

func WithMaxExecutionTime(d time.Duration) Option {
	return func(o *clickhouse.Options) {
		if s := int(d.Seconds()); s > 0 {
			o.Settings["max_execution_time"] = s
		}
	}
}

// Client owns the database/sql pool the archives share.
type Client struct {
	db   *sql.DB
	opts *clickhouse.Options
}

func NewClient(opts ...Option) (*Client, error) {
	o := &clickhouse.Options{
		Protocol:        clickhouse.Native,
		Settings:        clickhouse.Settings{},
		Compression:     &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.Addr) == 0 {
		return nil, errors.New("clickhouse: address is required")
	}
	if o.Protocol == clickhouse.HTTP {
		o.Compression = &clickhouse.Compression{Method: clickhouse.CompressionGZIP}
	}

	db := clickhouse.OpenDB(o)
	ctx, cancel := context.WithTimeout(context.Background(), o.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %v: %w", o.Addr, err)
	}
	return &Client{db: db, opts: o}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Database() string { return c.opts.Auth.Database }

func (c *Client) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// Exec runs the statements in order and stops at the first failure.
func (c *Client) Exec(ctx context.Context, stmts ...string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse statement %d: %w", i+1, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
