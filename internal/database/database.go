// Package database opens and health-checks the connections behind the event
// stores and the report cache.
package database

import (
	"context"
	"fmt"
	"time"
)

// appName identifies this service to every backend it connects to.
const appName = "ivt-audit"

// connectTimeout bounds the initial dial and ping of every backend.
const connectTimeout = 10 * time.Second

// pingBackend runs fn under connectTimeout and names the backend in the error.
func pingBackend(ctx context.Context, backend string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("failed to ping %s: %w", backend, err)
	}
	return nil
}
