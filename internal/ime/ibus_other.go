//go:build !linux

package ime

import (
	"context"
	"log/slog"
	"time"

	"copyx/internal/expander"
)

// IBusEngine is unavailable outside linux.
type IBusEngine struct{}

// Stats counts engine activity.
type Stats struct {
	KeyEvents    uint64
	Suppressed   uint64
	FocusChanges uint64
	LastKey      time.Time
}

func NewIBusEngine(loop *expander.Loop, cfg Config, logger *slog.Logger) *IBusEngine {
	return &IBusEngine{}
}

func (e *IBusEngine) Start(ctx context.Context) error { return ErrUnsupported }
func (e *IBusEngine) Stop() error                     { return nil }
func (e *IBusEngine) Stats() Stats                    { return Stats{} }

var restartIBus = func() {}
