// Package main is the retailsql command.
package main

import (
	"os"

	"github.com/leapstack-labs/retailsql/internal/cli"

	_ "github.com/leapstack-labs/retailsql/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/retailsql/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/retailsql/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/retailsql/pkg/adapters/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
