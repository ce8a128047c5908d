package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite" // sqlite driver
)

// RetailSchema creates the normalised sales tables.
var RetailSchema = []string{
	"CREATE TABLE customers (customer_id INTEGER PRIMARY KEY, country TEXT)",
	"CREATE TABLE products (stock_code TEXT PRIMARY KEY, description TEXT, unit_price NUMERIC)",
	"CREATE TABLE invoices (invoice_no TEXT PRIMARY KEY, customer_id INTEGER, invoice_date TIMESTAMP)",
	"CREATE TABLE invoice_items (invoice_no TEXT, stock_code TEXT, quantity INTEGER)",
}

// RetailRows seeds two adjacent weeks: prior [2011-01-01, 2011-01-08) and
// current [2011-01-08, 2011-01-15). Current revenue is 45, prior 44.
var RetailRows = []string{
	"INSERT INTO customers VALUES (1, 'United Kingdom'), (2, 'France'), (3, NULL)",
	"INSERT INTO products VALUES ('A', 'Widget', 2.00), ('B', 'Gadget', 4.00), ('C', 'Gizmo', 1.50)",
	`INSERT INTO invoices VALUES
		('P1', 1, '2011-01-02 10:00:00'),
		('P2', 2, '2011-01-03 11:00:00'),
		('P3', 3, '2011-01-05 09:00:00'),
		('C1', 1, '2011-01-09 10:00:00'),
		('C2', 2, '2011-01-10 12:00:00'),
		('C3', NULL, '2011-01-12 08:00:00'),
		('X1', 1, '2011-01-20 08:00:00')`,
	`INSERT INTO invoice_items VALUES
		('P1', 'A', 10), ('P1', 'B', 2),
		('P2', 'A', 5),
		('P3', 'C', 4),
		('C1', 'A', 12), ('C1', 'C', 6),
		('C2', 'B', 1), ('C2', 'A', -2),
		('C3', 'B', 3),
		('X1', 'A', 100)`,
}

// SeedRetailSQLite writes the retail fixture to a SQLite file in a temp
// directory and returns its path.
func SeedRetailSQLite(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retail.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, stmt := range append(append([]string{}, RetailSchema...), RetailRows...) {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}
