// Package engine reconciles synchronizable values against the SQLite store.
//
// A pass walks a value's StateVector in lock-step with its Shape, inside one
// exclusive transaction:
//   - Leaf: table at path with ("index", payload, metric); one row per index
//   - Group: one table at path, two columns per leaf field (field,
//     metric_field), one row lookup and at most one upsert per group;
//     non-leaf fields recurse into path.field
//   - Collection: rows addressed by the hex-encoded key; keys found in the
//     store but not in the value are materialized and inserted
//   - Collection of collections: the table at path maps each index to the
//     child collection's table
//
// # Merge Decisions
//
// Comparisons are leaf-local. Greater pushes the local payload, Less pulls
// the stored payload, Equal writes nothing. A group row can be partially
// pushed and partially pulled in the same pass, since each column carries
// its own metric.
//
// # Identifiers
//
// Table names are dot-joined field names and hex keys, always quoted.
// Index values are always bound as parameters.
package engine
