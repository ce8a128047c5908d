package mysql

import (
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/retailsql/pkg/adapter"
	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverConfig(t *testing.T) {
	tests := []struct {
		name   string
		cfg    adapter.Config
		params Params
		addr   string
		user   string
		db     string
	}{
		{
			name: "discrete fields with defaults",
			cfg:  adapter.Config{Database: "retail", Username: "reader", Password: "pw"},
			addr: "localhost:3306",
			user: "reader",
			db:   "retail",
		},
		{
			name:   "dsn",
			cfg:    adapter.Config{URL: "reader:pw@tcp(db.internal:3307)/retail"},
			params: Params{Timeout: 5 * time.Second},
			addr:   "db.internal:3307",
			user:   "reader",
			db:     "retail",
		},
		{
			name: "dsn cannot enable multiple statements",
			cfg:  adapter.Config{URL: "reader:pw@tcp(db.internal:3306)/retail?multiStatements=true&interpolateParams=true&allowAllFiles=true"},
			addr: "db.internal:3306",
			user: "reader",
			db:   "retail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc, err := driverConfig(tt.cfg, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, mc.Addr)
			assert.Equal(t, tt.user, mc.User)
			assert.Equal(t, tt.db, mc.DBName)
			assert.True(t, mc.ParseTime)
			assert.False(t, mc.MultiStatements)
			assert.False(t, mc.InterpolateParams)
			assert.False(t, mc.AllowAllFiles)
			if tt.params.Timeout > 0 {
				assert.Equal(t, tt.params.Timeout, mc.Timeout)
			}
		})
	}

	_, err := driverConfig(adapter.Config{URL: "not a dsn"}, Params{})
	assert.ErrorContains(t, err, "invalid mysql DSN")
}

func TestTranslateError(t *testing.T) {
	err := translateError(&mysql.MySQLError{Number: 3024, SQLState: [5]byte{'H', 'Y', '0', '0', '0'}, Message: "Query execution was interrupted"})
	var engineErr *core.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.True(t, engineErr.Timeout)
	assert.Equal(t, "HY000", engineErr.Code)

	err = translateError(errors.New("bad connection"))
	require.ErrorAs(t, err, &engineErr)
	assert.False(t, engineErr.Timeout)
}

func TestNew(t *testing.T) {
	adp := New(nil)
	assert.True(t, adp.TxOptions.ReadOnly)
	assert.Equal(t, "mysql", adp.DialectName())
	assert.Equal(t, core.PlaceholderQuestion, adp.Placeholder())
	assert.True(t, adapter.IsRegistered("mysql"))
}
