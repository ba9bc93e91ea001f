package stage

import "context"

// Checker is implemented by components that report readiness to the daemon
// status surface.
type Checker interface {
	HealthCheck(context.Context) Health
}
