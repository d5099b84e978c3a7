package timeout

import (
	"time"

	"github.com/andres-erbsen/clock"
)

// TimeProvider abstracts time operations for deterministic testing.
// Implementations must be safe for concurrent use.
type TimeProvider interface {
	Now() time.Time
}

// defaultTimeProvider is the package-level default used when a nil provider is passed.
var defaultTimeProvider TimeProvider = clock.New()

// SetDefaultTimeProvider sets the package-level time provider.
// Pass nil to reset to the wall clock.
func SetDefaultTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = clock.New()
	}
	defaultTimeProvider = tp
}

// GetDefaultTimeProvider returns the current package-level time provider.
func GetDefaultTimeProvider() TimeProvider {
	return defaultTimeProvider
}

// getTimeProvider returns tp if non-nil, otherwise the package-level default.
func getTimeProvider(tp TimeProvider) TimeProvider {
	if tp != nil {
		return tp
	}
	return defaultTimeProvider
}
