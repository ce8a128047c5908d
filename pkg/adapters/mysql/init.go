package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/retailsql/pkg/adapter"
)

func init() {
	adapter.Register("mysql", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
