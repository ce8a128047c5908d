// Package core defines the shared language of the retailsql gateway.
//
// This package contains:
//   - Statement types (BoundStatement, Row, Result)
//   - The read-only store contract (Adapter, AdapterConfig, RowSet)
//   - Execution records and the Sink they are delivered to
//   - The error taxonomy shared by every layer
//
// pkg/core imports only the standard library. All other packages depend on
// core, not the reverse.
package core
