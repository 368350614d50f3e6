// Package alert delivers the run report to the configured notifier sinks.
package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Sink is a notification destination.
type Sink interface {
	Send(ctx context.Context, msg types.Message) error
	Name() string
}

// Dispatcher fans a message out to every sink. Delivery is best-effort: a
// failing sink is logged and the others still receive the message.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher from alert configs.
func NewDispatcher(ctx context.Context, configs []types.AlertConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, cfg := range configs {
		sink, err := newSink(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// NewDispatcherWithSinks builds a dispatcher over already constructed sinks.
func NewDispatcherWithSinks(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Send delivers msg to all sinks and returns how many accepted it.
func (d *Dispatcher) Send(ctx context.Context, msg types.Message) int {
	delivered := 0
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, msg); err != nil {
			d.logger.Error("notification failed", "sink", sink.Name(), "run", msg.RunID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Close releases sinks that hold resources, such as the file sink.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, sink := range d.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s sink: %w", sink.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func newSink(ctx context.Context, cfg types.AlertConfig) (Sink, error) {
	switch cfg.Type {
	case types.AlertConsole:
		return NewConsoleSink(nil), nil
	case types.AlertWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.AlertFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.AlertSQS:
		return NewSQSSink(ctx, cfg.QueueURL)
	default:
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
}
