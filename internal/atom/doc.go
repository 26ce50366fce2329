// Package atom defines the data model of the field-level sync engine.
//
// A synchronizable value is described three ways:
//   - Shape: the static structure (leaf / group / collection), computed once
//     per type and used to derive table layout without inspecting values
//   - StateVector: a transient view that borrows the live value so a merge
//     pass can update it in place
//   - RawAtomic: a detached, owned copy used for first-time pushes and for
//     materializing entries that exist only in the store
//
// # Merge Metrics
//
// Every leaf carries a Metric next to its payload:
//   - ImmutableMetric: content hash only; a mismatch with the stored hash is fatal
//   - TimedMetric: (logical time, content hash), compared lexicographically;
//     the larger pair wins on both sides, so concurrent writers converge
//
// Content hashes are BLAKE2b-256 over the JSON payload with domain
// separation. Metrics are serialized with MessagePack.
//
// # Collections
//
// OrderedMap bridges a Go map into the collection case. Keys are encoded as
// the hex form of their canonical JSON, which becomes the row index in the
// store.
package atom
