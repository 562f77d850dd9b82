// Package internaldefs exposes the stable metric name definitions shared
// by the exporter implementations, so the Prometheus and OTel exporters
// always publish identical names.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
