// Package engine composes the PnL and position analytics into one message
// sink and handles persistence of the engine settings.
package engine

import (
	"context"

	"pnl_engine/internal/core"
)

// SettingsStore persists engine settings across restarts.
type SettingsStore interface {
	SaveSettings(ctx context.Context, settings core.Settings) error
	// LoadSettings returns (nil, nil) when nothing has been saved yet.
	LoadSettings(ctx context.Context) (*core.Settings, error)
	Close() error
}
