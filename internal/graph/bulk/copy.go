// Package bulk implements the graph bulk-loading pipeline: COPY-based
// staging into transaction-scoped temp tables, logical-to-graph id
// resolution, referential validation, and label-partitioned upserts under
// per-label advisory locks, all inside one transaction per batch.
package bulk

import (
	"strings"
)

// escapeCopyText escapes a value for the COPY text format: backslash, tab,
// newline, and carriage return would otherwise be read as structure by the
// server-side decoder.
var copyEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\t", "\\t",
	"\n", "\\n",
	"\r", "\\r",
)

func escapeCopyText(value string) string {
	return copyEscaper.Replace(value)
}

// copyRow joins already-escaped fields into one COPY text row.
func copyRow(fields ...string) string {
	return strings.Join(fields, "\t") + "\n"
}
