// Package shelf is a filesystem-backed structured store.
//
// A record is identified by an ordered tuple of typed field values, and the
// tuple is its path: one directory level per field, in schema order. Each
// record directory holds a metadata file with scalar attributes and any
// number of attached files. The directory tree is the source of truth;
// there is no index.
//
//	root/
//	  .shelf.json
//	  2024-05-01/run-1/metadata.json
//	  2024-05-01/run-1/results.csv
//
// [Shelf.Aggregate] walks the whole tree and merges every record's metadata
// into one table and every same-named tabular attachment into another,
// unioning columns across records. Records that do not parse are skipped
// with a [Warning] instead of failing the walk.
//
// Writers are expected to take turns. Record creation is exclusive per
// path, but nothing coordinates concurrent attaches to the same record.
package shelf
