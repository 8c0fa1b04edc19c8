package main

import (
	"context"
	"fmt"

	"github.com/steveyegge/defects/internal/config"
	"github.com/steveyegge/defects/internal/telemetry"
	"github.com/steveyegge/defects/internal/tracker"

	// Registered backends.
	_ "github.com/steveyegge/defects/internal/jira"
	_ "github.com/steveyegge/defects/internal/storage/memory"
	_ "github.com/steveyegge/defects/internal/storage/sqlstore"
)

// openBackend builds the configured tracker backend, reading its settings
// from the "<backend>." config keys or their environment fallbacks.
func openBackend(ctx context.Context) (tracker.Backend, error) {
	name := config.GetString(config.KeyBackend)
	b, err := tracker.Open(ctx, name, tracker.NewConfig(ctx, name, config.Store{}))
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", name, err)
	}
	return telemetry.WrapStore(b), nil
}

// commandContext bounds a command by the configured timeout.
func commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := config.GetDuration(config.KeyTimeout); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
