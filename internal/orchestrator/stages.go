package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dwsmith1983/nfeflow/internal/actions"
	"github.com/dwsmith1983/nfeflow/internal/filetag"
	"github.com/dwsmith1983/nfeflow/internal/matcher"
	"github.com/dwsmith1983/nfeflow/internal/nfe"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

const detailRecovered = "recovered"

// stages holds the state of one run's stage execution. Documents are
// processed one at a time on the calling goroutine.
type stages struct {
	runner *Runner
	sess   actions.Session
	log    *slog.Logger

	res  types.StageResults
	docs []types.Document // Import successes, in order
}

func (s *stages) run(ctx context.Context, pending, recovered []filetag.Entry) types.StageResults {
	for _, e := range pending {
		doc, res := s.importOne(ctx, e)
		s.res.Import = append(s.res.Import, res)
		if res.Outcome.Succeeded() {
			s.docs = append(s.docs, doc)
		}
	}
	for _, e := range recovered {
		doc := s.document(e)
		s.res.Import = append(s.res.Import, types.Result{ID: doc.ID, Outcome: types.OutcomeAlreadyDone, Detail: detailRecovered})
		s.docs = append(s.docs, doc)
		s.log.Info("resuming interrupted document", "document", doc.ID, "file", e.Name)
	}

	s.withInvoices(ctx, s.linkAndEntry)
	return s.res
}

// withInvoices runs phase, then the Invoice stage for every imported
// document however phase ends. A panic escaping phase is re-raised once the
// invoices are done.
func (s *stages) withInvoices(ctx context.Context, phase func(context.Context)) {
	defer s.invoices(ctx)
	phase(ctx)
}

func (s *stages) invoices(ctx context.Context) {
	for _, doc := range s.docs {
		s.res.Invoice = append(s.res.Invoice, s.attempt(ctx, types.StageInvoice, doc, s.invoice))
	}
}

func (s *stages) linkAndEntry(ctx context.Context) {
	var linked []types.Document
	for _, doc := range s.docs {
		res := s.attempt(ctx, types.StageLink, doc, s.link)
		s.res.Link = append(s.res.Link, res)
		if res.Outcome == types.OutcomeOK {
			linked = append(linked, doc)
		}
	}
	for _, doc := range linked {
		s.res.Entry = append(s.res.Entry, s.attempt(ctx, types.StageEntry, doc, s.entry))
	}
}

// attempt runs one stage for one document. A panic becomes an ERROR result
// for that document only.
func (s *stages) attempt(ctx context.Context, stage types.Stage, doc types.Document, fn func(context.Context, types.Document) types.Result) (res types.Result) {
	ctx, span := s.runner.metrics.Tracer().Start(ctx, "nfeflow."+strings.ToLower(string(stage)))
	span.SetAttributes(attribute.String("document.id", doc.ID))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			res = types.Result{ID: doc.ID, Outcome: types.OutcomeError, Detail: fmt.Sprintf("panic: %v", p)}
		}
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		if res.Outcome == types.OutcomeError {
			span.SetStatus(codes.Error, res.Detail)
			s.log.Warn("stage failed", "stage", stage, "document", doc.ID, "detail", res.Detail)
		} else {
			s.log.Info("stage done", "stage", stage, "document", doc.ID, "outcome", res.Outcome)
		}
		s.runner.metrics.RecordOutcome(ctx, stage, res.Outcome)
	}()

	return fn(ctx, doc)
}

// document builds the Document for a cached entry, keyed by the invoice
// number inside the XML. The filename's leading digits are used only when
// the XML cannot be read.
func (s *stages) document(e filetag.Entry) types.Document {
	doc := types.Document{Path: s.runner.cache.Path(e)}
	var err error
	doc.ID, doc.IssueDate, err = nfe.Identify(doc.Path, e.ID)
	if err != nil {
		s.log.Warn("reading cached document failed", "document", doc.ID, "file", e.Name, "error", err)
	}
	return doc
}

func (s *stages) importOne(ctx context.Context, e filetag.Entry) (types.Document, types.Result) {
	doc := s.document(e)
	res := s.attempt(ctx, types.StageImport, doc, func(ctx context.Context, _ types.Document) types.Result {
		content, err := os.ReadFile(doc.Path)
		if err != nil {
			return failed(doc, fmt.Errorf("reading cached document: %w", err))
		}

		outcome := types.OutcomeOK
		if err := s.sess.ImportDocument(ctx, doc, content); err != nil {
			if !errors.Is(err, actions.ErrAlreadyDone) {
				return failed(doc, err)
			}
			outcome = types.OutcomeAlreadyDone
		}

		moved, err := s.runner.cache.MarkImported(ctx, e, outcome)
		if err != nil {
			s.log.Warn("tagging cached document failed", "document", doc.ID, "error", err)
		} else {
			doc.Path = s.runner.cache.Path(moved)
		}
		s.mark(ctx, doc, types.ColImported, true)
		return types.Result{ID: doc.ID, Outcome: outcome}
	})
	return doc, res
}

// link confirms every suggested catalog match the matcher accepts and
// succeeds only when no line item is left unlinked.
func (s *stages) link(ctx context.Context, doc types.Document) types.Result {
	items, err := s.sess.LineItems(ctx, doc)
	if err != nil {
		return failed(doc, err)
	}
	if len(items) == 0 {
		s.mark(ctx, doc, types.ColLinked, false)
		return types.Result{ID: doc.ID, Outcome: types.OutcomeError, Detail: "no line items"}
	}

	for _, item := range items {
		if item.Linked || !matcher.ShouldAutoLink(item.Product, item.Ref) {
			continue
		}
		if err := s.sess.ConfirmLink(ctx, doc, item); err != nil {
			s.log.Warn("confirming line item failed", "document", doc.ID, "ref", item.Ref, "error", err)
		}
	}

	items, err = s.sess.LineItems(ctx, doc)
	if err != nil {
		return failed(doc, err)
	}
	pending := 0
	for _, item := range items {
		if !item.Linked {
			pending++
		}
	}
	if pending > 0 {
		s.mark(ctx, doc, types.ColLinked, false)
		return types.Result{ID: doc.ID, Outcome: types.OutcomeError, Detail: fmt.Sprintf("%d line items need manual linking", pending)}
	}
	s.mark(ctx, doc, types.ColLinked, true)
	return types.Result{ID: doc.ID, Outcome: types.OutcomeOK}
}

func (s *stages) entry(ctx context.Context, doc types.Document) types.Result {
	l := s.runner.ledger
	row, err := l.FindOrCreateRow(ctx, doc.ID, doc.IssueDate)
	if err != nil {
		return failed(doc, fmt.Errorf("ledger: %w", err))
	}
	saved, err := l.Flag(ctx, row, types.ColEntrySaved)
	if err != nil {
		return failed(doc, fmt.Errorf("ledger: %w", err))
	}
	if saved {
		ref, _ := l.Cell(ctx, row, types.ColEntryLink)
		return types.Result{ID: doc.ID, Outcome: types.OutcomeAlreadyDone, Detail: ref}
	}

	ref, err := s.sess.GenerateEntry(ctx, doc)
	switch {
	case errors.Is(err, actions.ErrAlreadyDone):
		s.update(ctx, doc.ID, row, types.ColEntrySaved, true)
		return types.Result{ID: doc.ID, Outcome: types.OutcomeAlreadyDone}
	case err != nil:
		return failed(doc, err)
	case ref == "":
		return types.Result{ID: doc.ID, Outcome: types.OutcomeError, Detail: "no entry reference returned"}
	}

	s.update(ctx, doc.ID, row, types.ColEntrySaved, true)
	s.update(ctx, doc.ID, row, types.ColEntryLink, ref)
	return types.Result{ID: doc.ID, Outcome: types.OutcomeOK, Detail: ref}
}

func (s *stages) invoice(ctx context.Context, doc types.Document) types.Result {
	l := s.runner.ledger
	row, err := l.FindOrCreateRow(ctx, doc.ID, doc.IssueDate)
	if err != nil {
		return failed(doc, fmt.Errorf("ledger: %w", err))
	}
	saved, err := l.Flag(ctx, row, types.ColInvoiceSaved)
	if err != nil {
		return failed(doc, fmt.Errorf("ledger: %w", err))
	}
	if saved {
		return types.Result{ID: doc.ID, Outcome: types.OutcomeAlreadyDone}
	}

	if _, err := os.Stat(doc.Path); errors.Is(err, fs.ErrNotExist) {
		return types.Result{ID: doc.ID, Outcome: types.OutcomeError, Detail: "cached document not found"}
	}
	inv, err := nfe.ParseFile(doc.Path)
	if err != nil {
		return failed(doc, err)
	}

	if _, err := s.sess.GenerateInvoice(ctx, doc, inv.Payable()); err != nil {
		if !errors.Is(err, actions.ErrAlreadyDone) {
			return failed(doc, err)
		}
		s.update(ctx, doc.ID, row, types.ColInvoiceSaved, true)
		return types.Result{ID: doc.ID, Outcome: types.OutcomeAlreadyDone}
	}
	s.update(ctx, doc.ID, row, types.ColInvoiceSaved, true)
	return types.Result{ID: doc.ID, Outcome: types.OutcomeOK}
}

// mark upserts the document's ledger row and sets one column. Ledger write
// failures do not change the stage outcome.
func (s *stages) mark(ctx context.Context, doc types.Document, col types.Column, value any) {
	row, err := s.runner.ledger.FindOrCreateRow(ctx, doc.ID, doc.IssueDate)
	if err != nil {
		s.log.Warn("ledger upsert failed", "document", doc.ID, "error", err)
		return
	}
	s.update(ctx, doc.ID, row, col, value)
}

func (s *stages) update(ctx context.Context, id string, row int, col types.Column, value any) {
	if err := s.runner.ledger.UpdateCell(ctx, row, col, value); err != nil {
		s.log.Warn("ledger update failed", "document", id, "column", col.String(), "error", err)
	}
}

func failed(doc types.Document, err error) types.Result {
	return types.Result{ID: doc.ID, Outcome: types.OutcomeError, Detail: err.Error()}
}
