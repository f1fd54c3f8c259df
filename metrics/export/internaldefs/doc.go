// Package internaldefs holds the metric names, help strings and histogram
// bounds shared by the Prometheus and OTel exporters.
//
// Both exporters iterate the same definitions, so a console scraped through
// either one reports identical metric names and bucket boundaries.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
