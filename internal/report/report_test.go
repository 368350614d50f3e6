package report

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

func ok(id string) types.Result { return types.Result{ID: id, Outcome: types.OutcomeOK} }

func result(id string, o types.Outcome, detail string) types.Result {
	return types.Result{ID: id, Outcome: o, Detail: detail}
}

func assertGolden(t *testing.T, name string, r Report) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(r.Render()))
}

func TestBuild_TwoDocuments(t *testing.T) {
	res := types.StageResults{
		Import: []types.Result{ok("1001"), result("1002", types.OutcomeAlreadyDone, "")},
		Link:   []types.Result{ok("1001"), result("1002", types.OutcomeError, "2 line items need manual linking")},
		Entry:  []types.Result{result("1001", types.OutcomeOK, "https://erp.example/entries/1001")},
		Invoice: []types.Result{
			ok("1001"),
			result("1002", types.OutcomeAlreadyDone, ""),
		},
	}
	r := Build("NF-e run 15/01/2026 08:00", res)

	assert.Equal(t, []Line{
		{ID: "1001", Outcome: types.OutcomeOK, Detail: "https://erp.example/entries/1001"},
		{ID: "1002", Outcome: types.OutcomeError},
	}, r.Section(types.StageEntry))
	assertGolden(t, "two_documents", r)
}

func TestBuild_PartialFailure(t *testing.T) {
	res := types.StageResults{
		Import: []types.Result{
			ok("2001"),
			result("2002", types.OutcomeAlreadyDone, "recovered"),
			result("2003", types.OutcomeError, "access key rejected"),
		},
		Link:    []types.Result{result("2001", types.OutcomeError, "panic: line item table vanished")},
		Invoice: []types.Result{ok("2001"), result("2002", types.OutcomeError, "payable not saved")},
	}
	r := Build("NF-e run 16/01/2026 08:00", res)

	invoice := r.Section(types.StageInvoice)
	assert.Len(t, invoice, 3, "every import identifier appears in the invoice section")
	assert.Equal(t, types.OutcomeError, invoice[2].Outcome)
	assertGolden(t, "partial_failure", r)
}

func TestBuild_EntryAlreadyDoneKeepsReference(t *testing.T) {
	res := types.StageResults{
		Import:  []types.Result{ok("1")},
		Link:    []types.Result{ok("1")},
		Entry:   []types.Result{result("1", types.OutcomeAlreadyDone, "ref-7")},
		Invoice: []types.Result{ok("1")},
	}
	out := Build("t", res).Render()
	assert.Contains(t, out, "- 1 ALREADY_DONE (ref-7)\n")
}

func TestReport_Empty(t *testing.T) {
	r := Build("nothing to do", types.StageResults{})
	assert.True(t, r.Empty())
	assert.Equal(t, "*nothing to do*\n", r.Render())

	r = Build("x", types.StageResults{Import: []types.Result{result("1", types.OutcomeError, "")}})
	assert.False(t, r.Empty())
}

func TestDerive_DeduplicatesUpstream(t *testing.T) {
	got := derive([]types.Result{ok("1"), ok("1")}, nil)
	assert.Len(t, got, 1)
}
