package orchestrator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/nfeflow/internal/filetag"
	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/internal/testutil"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

func TestWithInvoices_RunsInvoicesAndRepanics(t *testing.T) {
	dir := t.TempDir()
	cache, err := filetag.NewCache(dir, nil)
	require.NoError(t, err)
	r, err := New(Deps{
		Cache:  cache,
		Ledger: ledger.New(ledger.NewMemoryStore(), nil),
		Driver: testutil.NewMockDriver(),
	})
	require.NoError(t, err)

	sess := testutil.NewMockSession()
	st := &stages{runner: r, sess: sess, log: slog.Default()}
	st.docs = []types.Document{{
		ID:        "1001",
		IssueDate: "15/01/2026",
		Path:      testutil.WriteInvoice(t, dir, "1001(DONE_TMP).xml", "1001", "2026-01-15"),
	}}

	assert.PanicsWithValue(t, "session lost", func() {
		st.withInvoices(context.Background(), func(context.Context) { panic("session lost") })
	})
	require.Len(t, st.res.Invoice, 1)
	assert.Equal(t, types.OutcomeOK, st.res.Invoice[0].Outcome)
	assert.Len(t, sess.Invoices(), 1)
}
