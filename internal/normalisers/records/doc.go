// Package records normalises structured-record formats (JSON and YAML).
//
// Records are flattened one level deep:
//
//   - An array of objects becomes one row per object, with the union of
//     top-level keys as columns in first-appearance order.
//   - A single object becomes one row.
//   - An array of scalars becomes a single "value" column.
//
// Scalar values become cells. Nested objects and arrays are serialised to
// compact JSON strings instead of being expanded into further columns, so
// every input yields exactly one table.
package records
