// Package license stamps audit log lines with a stable per-machine
// identifier, so a fleet operator can tell which instance performed a
// security-sensitive operation. It has nothing to do with license
// enforcement despite the package name inherited from its origin.
package license

import (
	"sync"

	"github.com/denisbrodbeck/machineid"
)

var (
	once       sync.Once
	instanceID string
)

// InstanceID returns a stable identifier for the current machine, cached
// after the first successful lookup. Falls back to "unknown" if the
// platform-specific ID source is unavailable, since audit logging must
// never block on it.
func InstanceID() string {
	once.Do(func() {
		id, err := machineid.ID()
		if err != nil || id == "" {
			instanceID = "unknown"
			return
		}
		instanceID = id
	})
	return instanceID
}
