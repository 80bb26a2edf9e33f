// Package observability provides the zap logger factory, the Prometheus
// metrics collector, and tracing helpers shared by the outbox worker and the
// bulk loader.
package observability

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Production environments get JSON
// output at info level; anything else gets the development console encoder.
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
