// Package db stores cost records and run history in SurrealDB.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// WebSocket upgrades fail when wss negotiates HTTP/2 through ALPN.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

const (
	defaultConnectTimeout = 5 * time.Second
	defaultMaxReconnects  = 10
)

// Config holds SurrealDB connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"

	// Zero values fall back to 5s and 10 reconnects.
	ConnectTimeout time.Duration
	MaxReconnects  int
}

// ConfigFrom converts the application settings.
func ConfigFrom(c config.SurrealDBConfig) Config {
	return Config{
		URL:            c.URL,
		Namespace:      c.Namespace,
		Database:       c.Database,
		Username:       c.User,
		Password:       c.Pass,
		AuthLevel:      c.AuthLevel,
		ConnectTimeout: c.ConnectTimeout,
		MaxReconnects:  c.MaxReconnects,
	}
}

func (c Config) auth() surrealdb.Auth {
	a := surrealdb.Auth{Username: c.Username, Password: c.Password}
	if c.AuthLevel == "database" {
		a.Namespace = c.Namespace
		a.Database = c.Database
	}
	return a
}

// Client is a reconnecting SurrealDB session scoped to one namespace and
// database. Queries made through it are timed in the metrics collector.
type Client struct {
	conn    *rews.Connection[*gorillaws.Connection]
	db      *surrealdb.DB
	logger  logger.Logger
	metrics *metrics.Collector
}

// NewClient connects, signs in and selects the namespace and database.
// log and collector may be nil.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger, collector *metrics.Collector) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())

	conn := dial(cfg, sdkLogger)
	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := open(ctx, conn, cfg)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	sdkLogger.Info("SurrealDB ready", "namespace", cfg.Namespace, "database", cfg.Database)
	return &Client{conn: conn, db: db, logger: sdkLogger, metrics: collector}, nil
}

// dial prepares a CBOR websocket connection that reconnects with
// exponential backoff.
func dial(cfg Config, sdkLogger logger.Logger) *rews.Connection[*gorillaws.Connection] {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	reconnects := cfg.MaxReconnects
	if reconnects <= 0 {
		reconnects = defaultMaxReconnects
	}

	codec := surrealcbor.New()
	// gorillaws appends /rpc itself
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		timeout,
		codec,
		sdkLogger,
	)

	backoff := rews.NewExponentialBackoffRetryer()
	backoff.InitialDelay = time.Second
	backoff.MaxDelay = 30 * time.Second
	backoff.Multiplier = 2.0
	backoff.MaxRetries = reconnects
	conn.Retryer = backoff
	return conn
}

func open(ctx context.Context, conn *rews.Connection[*gorillaws.Connection], cfg Config) (*surrealdb.DB, error) {
	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("from connection: %w", err)
	}
	if _, err := db.SignIn(ctx, cfg.auth()); err != nil {
		return nil, fmt.Errorf("signin as %s: %w", cfg.Username, err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("use %s/%s: %w", cfg.Namespace, cfg.Database, err)
	}
	return db, nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing SurrealDB connection")
	return c.conn.Close(ctx)
}

// InitSchema defines the cost and run tables. Safe to run on every start.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := c.Query(ctx, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Query executes a SurrealQL query with parameters.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]any) (*[]surrealdb.QueryResult[any], error) {
	return query[any](ctx, c, sql, vars)
}

func query[T any](ctx context.Context, c *Client, sql string, vars map[string]any) (*[]surrealdb.QueryResult[T], error) {
	start := time.Now()
	res, err := surrealdb.Query[T](ctx, c.db, sql, vars)
	if c.metrics != nil {
		c.metrics.Observe(metrics.OpDBQuery, time.Since(start), err)
	}
	return res, wrapQueryError(err)
}

// WipeData deletes all cost records and runs. Tests only.
func (c *Client) WipeData(ctx context.Context) error {
	for _, table := range []string{tableCostRecord, tableRun} {
		if _, err := c.Query(ctx, "DELETE "+table, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
