// Package report aggregates the stage outcomes of a run into the text sent
// to the notifier.
package report

import (
	"strings"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Line is one identifier's outcome within a stage.
type Line struct {
	ID      string
	Outcome types.Outcome
	Detail  string
}

// Section groups the lines of one stage.
type Section struct {
	Stage types.Stage
	Lines []Line
}

// Report is the per-run summary. Sections follow pipeline order.
type Report struct {
	Title    string
	Sections []Section
}

// Build derives the report from executor results. Entry lists every
// identifier submitted to Link and Invoice every identifier seen by Import;
// an identifier with no successful outcome in those stages is reported as
// ERROR even if the stage never attempted it.
func Build(title string, res types.StageResults) Report {
	return Report{
		Title: title,
		Sections: []Section{
			{Stage: types.StageImport, Lines: lines(res.Import)},
			{Stage: types.StageLink, Lines: lines(res.Link)},
			{Stage: types.StageEntry, Lines: derive(res.Link, res.Entry)},
			{Stage: types.StageInvoice, Lines: derive(res.Import, res.Invoice)},
		},
	}
}

func lines(results []types.Result) []Line {
	out := make([]Line, 0, len(results))
	for _, r := range results {
		out = append(out, Line{ID: r.ID, Outcome: r.Outcome, Detail: r.Detail})
	}
	return out
}

// derive emits one line per identifier of the upstream stage, taking the
// downstream outcome when there is one.
func derive(upstream, downstream []types.Result) []Line {
	byID := make(map[string]types.Result, len(downstream))
	for _, r := range downstream {
		byID[r.ID] = r
	}
	out := make([]Line, 0, len(upstream))
	seen := make(map[string]bool, len(upstream))
	for _, u := range upstream {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		if r, ok := byID[u.ID]; ok {
			out = append(out, Line{ID: r.ID, Outcome: r.Outcome, Detail: r.Detail})
			continue
		}
		out = append(out, Line{ID: u.ID, Outcome: types.OutcomeError})
	}
	return out
}

// Empty reports whether no stage has any line. An empty report is not sent.
func (r Report) Empty() bool {
	for _, s := range r.Sections {
		if len(s.Lines) > 0 {
			return false
		}
	}
	return true
}

// Section returns the lines of a stage.
func (r Report) Section(stage types.Stage) []Line {
	for _, s := range r.Sections {
		if s.Stage == stage {
			return s.Lines
		}
	}
	return nil
}

// Render formats the report as chat-friendly text: a bold title, then one
// bold block per non-empty stage.
func (r Report) Render() string {
	var b strings.Builder
	b.WriteString("*" + r.Title + "*\n")
	for _, s := range r.Sections {
		if len(s.Lines) == 0 {
			continue
		}
		b.WriteString("\n*" + string(s.Stage) + "*\n")
		for _, l := range s.Lines {
			b.WriteString("- " + l.ID + " " + string(l.Outcome))
			if l.Detail != "" {
				b.WriteString(" (" + l.Detail + ")")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
