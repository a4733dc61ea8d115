// Package ports defines interfaces for external dependencies (Ports and Adapters pattern).
package ports

import "time"

// Clock abstracts the current time so record timestamps and poll deadlines
// can be controlled in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}
