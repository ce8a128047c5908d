package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leapstack-labs/retailsql/pkg/adapter"
	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   adapter.Config
		expected string
	}{
		{
			name: "basic connection",
			config: adapter.Config{
				Host:     "localhost",
				Port:     5432,
				Database: "retail",
				Username: "analyst",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=retail sslmode=disable user=analyst password=pass",
		},
		{
			name: "with custom sslmode",
			config: adapter.Config{
				Host:     "prod.example.com",
				Database: "retail",
				Username: "reader",
				Options:  map[string]string{"sslmode": "require"},
			},
			expected: "host=prod.example.com port=5432 dbname=retail sslmode=require user=reader",
		},
		{
			name:     "defaults",
			config:   adapter.Config{Database: "retail"},
			expected: "host=localhost port=5432 dbname=retail sslmode=disable",
		},
		{
			name: "password needing quotes",
			config: adapter.Config{
				Database: "retail",
				Password: "it's secret",
			},
			expected: `host=localhost port=5432 dbname=retail sslmode=disable password='it\'s secret'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPostgresDSN(tt.config))
		})
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := adapter.Config{
		URL:    "postgres://reader:pw@db.internal:6543/retail?sslmode=disable",
		Schema: "sales",
		Params: map[string]any{
			"min_conns":        2,
			"max_conns":        10,
			"connect_timeout":  "30s",
			"application_name": "retailsql",
		},
	}

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(2), poolCfg.MinConns)
	assert.Equal(t, int32(10), poolCfg.MaxConns)
	assert.Equal(t, 30*time.Second, poolCfg.ConnConfig.ConnectTimeout)
	assert.Equal(t, "db.internal", poolCfg.ConnConfig.Host)
	assert.Equal(t, uint16(6543), poolCfg.ConnConfig.Port)
	assert.Equal(t, "on", poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"])
	assert.Equal(t, "retailsql", poolCfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "sales", poolCfg.ConnConfig.RuntimeParams["search_path"])
}

func TestPoolConfig_Invalid(t *testing.T) {
	_, err := poolConfig(adapter.Config{Database: "retail", Params: map[string]any{"min_conns": 5, "max_conns": 2}})
	assert.ErrorContains(t, err, "exceeds max_conns")

	_, err = poolConfig(adapter.Config{Database: "retail", Params: map[string]any{"pool": "big"}})
	assert.ErrorContains(t, err, "invalid adapter params")
}

func TestStatementTimeoutPrelude(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	t.Run("no deadline sets nothing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		require.NoError(t, statementTimeoutPrelude(context.Background(), tx))
		require.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deadline becomes transaction-local timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT set_config\('statement_timeout', \$1, true\)`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		require.NoError(t, statementTimeoutPrelude(ctx, tx))
		require.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		code    string
		timeout bool
	}{
		{
			name:    "server error drops detail",
			err:     &pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`, Detail: "Key (email)=(a@b.c)"},
			message: `relation "nope" does not exist`,
			code:    "42P01",
		},
		{
			name:    "statement timeout",
			err:     &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"},
			message: "canceling statement due to statement timeout",
			code:    "57014",
			timeout: true,
		},
		{
			name:    "other error",
			err:     errors.New("conn closed"),
			message: "conn closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var engineErr *core.EngineError
			require.ErrorAs(t, translateError(tt.err), &engineErr)
			assert.Equal(t, tt.message, engineErr.Message)
			assert.Equal(t, tt.code, engineErr.Code)
			assert.Equal(t, tt.timeout, engineErr.Timeout)
			assert.NotContains(t, engineErr.Error(), "a@b.c")
		})
	}
}

func TestNew(t *testing.T) {
	adp := New(nil)

	assert.Nil(t, adp.DB, "DB should be nil before Connect")
	assert.False(t, adp.IsConnected())
	assert.Equal(t, "postgres", adp.DialectName())
	assert.Equal(t, core.PlaceholderDollar, adp.Placeholder())
	assert.True(t, adp.TxOptions.ReadOnly, "sessions must be read-only")

	var _ adapter.Adapter = (*Adapter)(nil)
}

func TestAdapter_NotConnected(t *testing.T) {
	adp := New(nil)
	ctx := context.Background()

	_, err := adp.QueryReadOnly(ctx, core.BoundStatement{SQL: "SELECT 1"}, 0)
	assert.ErrorContains(t, err, "not established")
	assert.ErrorContains(t, adp.Ping(ctx), "not established")
}

func TestAdapter_Registry(t *testing.T) {
	assert.True(t, adapter.IsRegistered("postgres"), "postgres adapter should be registered")

	factory, ok := adapter.Get("postgres")
	require.True(t, ok)

	pg, ok := factory(nil).(*Adapter)
	require.True(t, ok, "factory should return *Adapter")
	assert.Equal(t, "postgres", pg.DialectName())
}

func TestAdapter_Close(t *testing.T) {
	adp := New(nil)
	assert.NoError(t, adp.Close())
}
