package scripted

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/nfeflow/internal/actions"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

const scenarioYAML = `
documents:
  "1001":
    items:
      - ref: "0123"
        product: "CADEIRA (123) *(Sugestão)"
    entry: "https://erp/entries/1"
  "1002":
    import: already_done
    link: transient
    invoice: rejected
  "1003":
    import: error
`

func loadScenario(t *testing.T) *Scenario {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o644))
	sc, err := Load(path)
	require.NoError(t, err)
	return sc
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	sess, err := New(loadScenario(t)).Open(ctx)
	require.NoError(t, err)

	d1 := types.Document{ID: "1001"}
	require.NoError(t, sess.ImportDocument(ctx, d1, nil))
	assert.ErrorIs(t, sess.ImportDocument(ctx, d1, nil), actions.ErrAlreadyDone, "second import sees the first")

	items, err := sess.LineItems(ctx, d1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, sess.ConfirmLink(ctx, d1, items[0]))
	items, err = sess.LineItems(ctx, d1)
	require.NoError(t, err)
	assert.True(t, items[0].Linked)

	ref, err := sess.GenerateEntry(ctx, d1)
	require.NoError(t, err)
	assert.Equal(t, "https://erp/entries/1", ref)

	saved, err := sess.GenerateInvoice(ctx, d1, types.Payable{})
	require.NoError(t, err)
	assert.True(t, saved)

	d2 := types.Document{ID: "1002"}
	assert.ErrorIs(t, sess.ImportDocument(ctx, d2, nil), actions.ErrAlreadyDone)
	_, err = sess.LineItems(ctx, d2)
	assert.ErrorIs(t, err, actions.ErrTransient)
	saved, err = sess.GenerateInvoice(ctx, d2, types.Payable{})
	require.NoError(t, err)
	assert.False(t, saved)

	err = sess.ImportDocument(ctx, types.Document{ID: "1003"}, nil)
	require.Error(t, err)
	assert.Equal(t, types.FailurePermanent, actions.Classify(err))

	require.NoError(t, sess.ImportDocument(ctx, types.Document{ID: "9999"}, nil), "unlisted documents succeed")
}

func TestLogin(t *testing.T) {
	_, err := New(&Scenario{Login: "error"}).Open(context.Background())
	assert.Error(t, err)

	_, err = New(&Scenario{Login: "bogus"}).Open(context.Background())
	assert.ErrorContains(t, err, "unknown scripted response")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
