// Package actions defines the contract of the remote ERP automation that
// carries out each stage, and a resilient wrapper that bounds retries.
package actions

import (
	"context"
	"errors"
	"net"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

var (
	// ErrTransient marks a failure worth retrying: timeouts, stale sessions,
	// temporary unavailability.
	ErrTransient = errors.New("transient remote failure")
	// ErrAlreadyDone reports that the remote system already holds the effect.
	ErrAlreadyDone = errors.New("already done remotely")
)

// Driver opens authenticated sessions against the remote system.
type Driver interface {
	// Open logs in. A failure here is structural and aborts the run.
	Open(ctx context.Context) (Session, error)
}

// Session is one logged-in browser or API session. It is owned by a single
// run and never shared.
type Session interface {
	// ImportDocument uploads a document. ErrAlreadyDone means the remote
	// system already knows its access key.
	ImportDocument(ctx context.Context, doc types.Document, content []byte) error
	LineItems(ctx context.Context, doc types.Document) ([]types.LineItem, error)
	ConfirmLink(ctx context.Context, doc types.Document, item types.LineItem) error
	// GenerateEntry posts the accounting entry and returns its reference.
	GenerateEntry(ctx context.Context, doc types.Document) (string, error)
	// GenerateInvoice registers the payable; false means the remote form
	// rejected it without an error.
	GenerateInvoice(ctx context.Context, doc types.Document, p types.Payable) (bool, error)
	Close(ctx context.Context) error
}

// Classify maps an action error to a failure category.
func Classify(err error) types.FailureCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return types.FailureTimeout
	case errors.Is(err, ErrTransient):
		return types.FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.FailureTimeout
	}
	return types.FailurePermanent
}
