// Package orchestrator drives one run of the document pipeline: fetch, the
// four stages over a single remote session, local and remote finalisation,
// and the run report.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dwsmith1983/nfeflow/internal/actions"
	"github.com/dwsmith1983/nfeflow/internal/filetag"
	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/internal/metrics"
	"github.com/dwsmith1983/nfeflow/internal/report"
	"github.com/dwsmith1983/nfeflow/internal/retry"
	"github.com/dwsmith1983/nfeflow/internal/source"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// TitleLayout formats the run timestamp in the report title.
const TitleLayout = "02/01/2006 15:04"

// Notifier delivers a rendered report. It returns the number of sinks that
// accepted the message.
type Notifier interface {
	Send(ctx context.Context, msg types.Message) int
}

// Deps wires a Runner. Source, Notifier and Metrics are optional.
type Deps struct {
	Source   source.Source
	Cache    *filetag.Cache
	Ledger   *ledger.Ledger
	Driver   actions.Driver
	Notifier Notifier
	Policy   types.RetryPolicy
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Runner executes runs. It is not safe for concurrent use; the run lock
// guarantees a single active run.
type Runner struct {
	src      source.Source
	cache    *filetag.Cache
	ledger   *ledger.Ledger
	driver   actions.Driver
	notifier Notifier
	policy   types.RetryPolicy
	metrics  *metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Runner.
func New(d Deps) (*Runner, error) {
	if d.Cache == nil || d.Ledger == nil || d.Driver == nil {
		return nil, fmt.Errorf("cache, ledger and driver are required")
	}
	r := &Runner{
		src:      d.Source,
		cache:    d.Cache,
		ledger:   d.Ledger,
		driver:   d.Driver,
		notifier: d.Notifier,
		policy:   d.Policy,
		metrics:  d.Metrics,
		logger:   d.Logger,
		now:      d.Now,
	}
	if r.policy.MaxAttempts == 0 {
		r.policy = retry.DefaultRetryPolicy()
	}
	if r.metrics == nil {
		r.metrics = metrics.Global()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Run performs one complete run and returns its report. Per-document
// failures are part of the report; the error is reserved for structural
// failures (cache unreadable, login failed) and is returned before any
// stage touches the ledger.
func (r *Runner) Run(ctx context.Context) (report.Report, error) {
	runID := ulid.Make().String()
	started := r.now()
	title := "NF-e run " + started.Format(TitleLayout)
	log := r.logger.With("run", runID)

	ctx, span := r.metrics.Tracer().Start(ctx, "nfeflow.run")
	span.SetAttributes(attribute.String("run.id", runID))
	defer span.End()

	status := "failed"
	defer func() { r.metrics.RecordRun(ctx, r.now().Sub(started), status) }()

	if r.src != nil {
		sum := source.NewFetcher(r.src, r.cache, r.ledger, log).Fetch(ctx)
		log.Info("fetch complete", "listed", sum.Listed, "downloaded", sum.Downloaded, "repaired", sum.Repaired)
	}

	pending, err := r.cache.PendingForImport()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report.Report{Title: title}, fmt.Errorf("listing pending documents: %w", err)
	}
	recovered, err := r.cache.Recoverable()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report.Report{Title: title}, fmt.Errorf("listing recoverable documents: %w", err)
	}
	if len(pending) == 0 && len(recovered) == 0 {
		log.Info("nothing to process")
		status = "idle"
		return report.Report{Title: title}, nil
	}

	sess, err := r.driver.Open(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report.Report{Title: title}, fmt.Errorf("opening remote session: %w", err)
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("closing remote session failed", "error", err)
		}
	}()
	st := &stages{
		runner: r,
		sess:   actions.NewResilient(sess, r.policy, log),
		log:    log,
	}
	res := func() types.StageResults {
		defer r.finalize(context.WithoutCancel(ctx), log)
		return st.run(ctx, pending, recovered)
	}()

	rep := report.Build(title, res)
	status = "completed"
	log.Info("run complete",
		"imported", len(types.Succeeded(res.Import)),
		"linked", len(types.WithOutcome(res.Link, types.OutcomeOK)),
		"entries", len(types.Succeeded(res.Entry)),
		"invoices", len(types.Succeeded(res.Invoice)),
	)
	r.notify(ctx, log, runID, started, rep)
	return rep, nil
}

func (r *Runner) finalize(ctx context.Context, log *slog.Logger) {
	done, err := r.cache.Finalize(ctx)
	if err != nil {
		log.Warn("finalising cache failed", "error", err)
		return
	}
	if r.src == nil || len(done) == 0 {
		return
	}
	n := source.Mirror(ctx, r.src, done, log)
	log.Info("remote documents finalised", "renamed", n, "finalised", len(done))
}

func (r *Runner) notify(ctx context.Context, log *slog.Logger, runID string, at time.Time, rep report.Report) {
	if rep.Empty() || r.notifier == nil {
		return
	}
	msg := types.Message{
		RunID:     runID,
		Title:     rep.Title,
		Text:      rep.Render(),
		Timestamp: at,
	}
	if n := r.notifier.Send(ctx, msg); n == 0 {
		log.Warn("run report was not delivered")
	}
}
