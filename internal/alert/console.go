package alert

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// ConsoleSink prints the report to the terminal with a highlighted title.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a console sink writing to w, or to color.Output
// when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = color.Output
	}
	return &ConsoleSink{out: w}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes the message; ERROR outcomes are shown in red.
func (s *ConsoleSink) Send(_ context.Context, msg types.Message) error {
	title := color.New(color.Bold, color.FgCyan)
	if _, err := title.Fprintf(s.out, "[%s] %s\n", msg.RunID, msg.Title); err != nil {
		return err
	}
	errWord := string(types.OutcomeError)
	_, err := fmt.Fprintln(s.out, strings.ReplaceAll(msg.Text, errWord, color.RedString(errWord)))
	return err
}
