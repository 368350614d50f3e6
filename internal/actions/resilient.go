package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/nfeflow/internal/retry"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Compile-time interface satisfaction check.
var _ Session = (*Resilient)(nil)

// breakerThreshold is the number of consecutive calls that exhausted their
// retries on transient failures before the remaining calls fail fast.
const breakerThreshold = 3

// Resilient retries transient failures of the wrapped session and trips a
// circuit breaker when the remote system keeps failing.
type Resilient struct {
	next    Session
	policy  types.RetryPolicy
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewResilient wraps next. The breaker stays open for the rest of a run.
func NewResilient(next Session, policy types.RetryPolicy, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resilient{next: next, policy: policy, logger: logger}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "remote-session",
		Timeout: time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || Classify(err) == types.FailurePermanent
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return r
}

func (r *Resilient) call(ctx context.Context, op string, doc types.Document, fn func() error) error {
	attempt := 0
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, retry.Do(ctx, r.policy, Classify, func() error {
			attempt++
			err := fn()
			if err != nil && Classify(err) != types.FailurePermanent {
				r.logger.Warn("remote action failed", "op", op, "document", doc.ID, "attempt", attempt, "error", err)
			}
			return err
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("%s %s: %w", op, doc.ID, err)
	}
	return err
}

func (r *Resilient) ImportDocument(ctx context.Context, doc types.Document, content []byte) error {
	return r.call(ctx, "import", doc, func() error {
		return r.next.ImportDocument(ctx, doc, content)
	})
}

func (r *Resilient) LineItems(ctx context.Context, doc types.Document) ([]types.LineItem, error) {
	var items []types.LineItem
	err := r.call(ctx, "list items", doc, func() error {
		var err error
		items, err = r.next.LineItems(ctx, doc)
		return err
	})
	return items, err
}

func (r *Resilient) ConfirmLink(ctx context.Context, doc types.Document, item types.LineItem) error {
	return r.call(ctx, "confirm link", doc, func() error {
		return r.next.ConfirmLink(ctx, doc, item)
	})
}

func (r *Resilient) GenerateEntry(ctx context.Context, doc types.Document) (string, error) {
	var ref string
	err := r.call(ctx, "entry", doc, func() error {
		var err error
		ref, err = r.next.GenerateEntry(ctx, doc)
		return err
	})
	return ref, err
}

// GenerateInvoice treats a silent rejection as transient so it is retried
// within the policy.
func (r *Resilient) GenerateInvoice(ctx context.Context, doc types.Document, p types.Payable) (bool, error) {
	err := r.call(ctx, "invoice", doc, func() error {
		saved, err := r.next.GenerateInvoice(ctx, doc, p)
		if err != nil {
			return err
		}
		if !saved {
			return fmt.Errorf("%w: payable not saved", ErrTransient)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resilient) Close(ctx context.Context) error {
	return r.next.Close(ctx)
}
