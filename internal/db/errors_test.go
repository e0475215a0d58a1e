package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"
)

func TestWrapQueryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"already exists", &surrealdb.QueryError{Message: "Database record `run:abc` already exists"}, ErrAlreadyExists},
		{"conflict", fmt.Errorf("query: %w", &surrealdb.QueryError{Message: "Transaction conflict: resource busy"}), ErrTransactionConflict},
		{"other query error", &surrealdb.QueryError{Message: "Parse error"}, nil},
		{"plain error", errors.New("connection closed"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapQueryError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			if tt.want == nil {
				assert.Equal(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestRetryOnConflict(t *testing.T) {
	conflict := wrapQueryError(&surrealdb.QueryError{Message: "Transaction conflict: resource busy"})

	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := 0
		err := retryOnConflict(context.Background(), func() error {
			calls++
			if calls < conflictAttempts {
				return conflict
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, conflictAttempts, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := retryOnConflict(context.Background(), func() error {
			calls++
			return conflict
		})
		assert.ErrorIs(t, err, ErrTransactionConflict)
		assert.Equal(t, conflictAttempts, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("connection closed")
		err := retryOnConflict(context.Background(), func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := retryOnConflict(ctx, func() error {
			calls++
			return conflict
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestConfigFrom(t *testing.T) {
	got := ConfigFrom(config.SurrealDBConfig{
		URL: "ws://db:8000/rpc", Namespace: "urdufact", Database: "benchmark",
		User: "root", Pass: "secret", AuthLevel: "database",
		ConnectTimeout: 2 * time.Second, MaxReconnects: 3,
	})
	assert.Equal(t, Config{
		URL: "ws://db:8000/rpc", Namespace: "urdufact", Database: "benchmark",
		Username: "root", Password: "secret", AuthLevel: "database",
		ConnectTimeout: 2 * time.Second, MaxReconnects: 3,
	}, got)
}

func TestConfigAuth(t *testing.T) {
	cfg := Config{Namespace: "ns", Database: "db", Username: "u", Password: "p"}
	assert.Equal(t, surrealdb.Auth{Username: "u", Password: "p"}, cfg.auth())

	cfg.AuthLevel = "database"
	assert.Equal(t, surrealdb.Auth{Namespace: "ns", Database: "db", Username: "u", Password: "p"}, cfg.auth())
}

func TestUsageRowRecord(t *testing.T) {
	row := UsageRow{ToolName: "gpt-4o", Kind: "model", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Calls: 2}
	assert.Equal(t, models.CostRecord{
		Tool: "gpt-4o", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Kind: models.CostKindModel,
	}, row.Record())
}
