package core

import (
	"context"
)

// ShutdownFunc is a cleanup handler run once a run has ended. The context may
// carry a deadline; implementations should honor it and be safe to call twice.
type ShutdownFunc func(ctx context.Context) error
