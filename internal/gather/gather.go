// Package gather defines the interface shared by all data acquisition
// processes feeding the market data stores.
package gather

import "context"

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run executes one gathering pass. It returns when the pass completes
	// or ctx is cancelled.
	Run(ctx context.Context) error
}
