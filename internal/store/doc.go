// Package store provides the SQLite-backed row/column store that values
// are reconciled against.
//
// Every synchronized path maps to one data table:
//   - Leaf tables: "index", payload, metric
//   - Group tables: "index", then <field> and metric_<field> per leaf field
//   - Nested collection tables: "index", child (the child table's name)
//
// Table names are the dot-joined path and always travel as quoted
// identifiers. Index values always travel as bound parameters.
//
// # Critical Patterns
//
// One pass, one transaction
//   - Store.Lock runs a whole pass inside BEGIN EXCLUSIVE
//   - Any error rolls back every write of the pass, DDL included
//   - Passes in this process are serialized by a mutex, passes in other
//     processes by SQLite's lock
//
// Additive schema
//   - EnsureTable creates tables and adds columns; it never drops or retypes
//   - Committed DDL is remembered in an LRU keyed by table and column set
//
// Roots registry
//   - fieldsync_roots records each root name, its shape and pass count
//   - Names starting with fieldsync_ or sqlite_ are reserved
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
