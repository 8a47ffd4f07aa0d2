// Package domain defines the core types for the channel warehouse pipeline.
//
// Types in this package are pure value objects with no behavior beyond
// validation and derivation helpers, no database dependencies, and no HTTP
// concerns. They are the shared language between sources, the collector,
// the loader, the warehouse builders, and the repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Constants and enums belong here
package domain
