package progress_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truss/momentum/estimate"
	"github.com/truss/momentum/progress"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func laborActivity(id, wbs, phase, qty, craft, welder string) estimate.Activity {
	return estimate.Activity{
		ID:       estimate.ActivityID(id),
		WBSID:    estimate.WBSID(wbs),
		PhaseID:  estimate.PhaseID(phase),
		Type:     estimate.TypeLabor,
		Quantity: dec(qty),
		Labor:    &estimate.Labor{CraftConstant: dec(craft), WelderConstant: dec(welder)},
	}
}

// =============================================================================
// PERCENT AND STATUS
// =============================================================================

func TestPercentComplete(t *testing.T) {
	tests := []struct {
		name          string
		earned, total string
		want          int64
	}{
		{"zero total", "5", "0", 0},
		{"nothing earned", "0", "60", 0},
		{"worked example", "24", "60", 40},
		{"over completion is not clamped", "72", "60", 120},
		{"rounds down below half", "1", "3", 33},
		{"rounds up above half", "2", "3", 67},
		{"half rounds away from zero", "0.5", "100", 1},
		{"just under half", "0.4", "100", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, progress.PercentComplete(dec(tc.earned), dec(tc.total)))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		percent int64
		want    progress.ProgressStatus
	}{
		{0, progress.StatusNotStarted},
		{1, progress.StatusInProgress},
		{99, progress.StatusInProgress},
		{100, progress.StatusComplete},
		{120, progress.StatusComplete},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, progress.StatusFor(tc.percent), "percent %d", tc.percent)
	}
}

func TestMetrics_RemainingMHFloorsAtZero(t *testing.T) {
	m := progress.NewMetrics(dec("60"), dec("72"))
	assertDec(t, "0", m.RemainingMH())

	m = progress.NewMetrics(dec("60"), dec("24"))
	assertDec(t, "36", m.RemainingMH())
}

// =============================================================================
// ACTIVITY ROLLUP
// =============================================================================

func TestRollupActivity_WorkedExample(t *testing.T) {
	// GIVEN: quantity 100, craft 0.5, welder 0.1 → 60 budgeted MH
	a := laborActivity("a1", "w1", "p1", "100", "0.5", "0.1")

	tests := []struct {
		completed string
		earned    string
		percent   int64
		status    progress.ProgressStatus
	}{
		{"0", "0", 0, progress.StatusNotStarted},
		{"40", "24", 40, progress.StatusInProgress},
		{"100", "60", 100, progress.StatusComplete},
		{"120", "72", 120, progress.StatusComplete},
	}
	for _, tc := range tests {
		t.Run(tc.completed, func(t *testing.T) {
			r := progress.RollupActivity(a, dec(tc.completed))
			assertDec(t, "60", r.Metrics.TotalMH)
			assertDec(t, tc.earned, r.Metrics.EarnedMH)
			assert.Equal(t, tc.percent, r.Metrics.PercentComplete)
			assert.Equal(t, tc.status, r.Metrics.Status)
		})
	}
}

func TestRollupActivity_NonLaborYieldsZero(t *testing.T) {
	a := estimate.Activity{ID: "m1", Type: estimate.TypeMaterial, Quantity: dec("400")}
	r := progress.RollupActivity(a, dec("200"))
	assert.True(t, r.Metrics.TotalMH.IsZero())
	assert.True(t, r.Metrics.EarnedMH.IsZero())
	assert.Equal(t, progress.StatusNotStarted, r.Metrics.Status)
}

func TestRemaining(t *testing.T) {
	assertDec(t, "60", progress.Remaining(dec("100"), dec("40")))
	assertDec(t, "0", progress.Remaining(dec("100"), dec("120")))
}

// =============================================================================
// TREE
// =============================================================================

func buildInput() progress.RollupInput {
	return progress.RollupInput{
		Project: progress.Project{ID: "proj-1"},
		Scope:   progress.Scope{ProjectID: "proj-1"},
		WBS: []estimate.WBS{
			{ID: "w-civil", SortOrder: 2},
			{ID: "w-pipe", SortOrder: 1},
			{ID: "w-empty", SortOrder: 3},
		},
		Phases: []estimate.Phase{
			{ID: "p-cs", WBSID: "w-pipe"},
			{ID: "p-found", WBSID: "w-civil"},
			{ID: "p-paint", WBSID: "w-civil", SortOrder: 1},
		},
		Activities: []estimate.Activity{
			laborActivity("a-weld", "w-pipe", "p-cs", "100", "0.5", "0.1"),
			laborActivity("a-pour", "w-civil", "p-found", "10", "2", "0"),
			{ID: "a-pipe", WBSID: "w-pipe", PhaseID: "p-cs", Type: estimate.TypeMaterial, Quantity: dec("400")},
		},
		Entries: []progress.ProgressEntry{
			{ActivityID: "a-weld", EntryDate: progress.MustParseDate("2025-03-03"), QuantityCompleted: dec("30")},
			{ActivityID: "a-weld", EntryDate: progress.MustParseDate("2025-03-04"), QuantityCompleted: dec("10")},
			{ActivityID: "a-pour", EntryDate: progress.MustParseDate("2025-03-04"), QuantityCompleted: dec("1")},
			{ActivityID: "a-gone", EntryDate: progress.MustParseDate("2025-03-04"), QuantityCompleted: dec("99")},
		},
	}
}

func TestBuildRollup_ParentsRecomputeFromSums(t *testing.T) {
	// GIVEN: weld at 40% of 60 MH and pour at 10% of 20 MH
	// WHEN: Rolling up to the project
	// THEN: Project is 26/80 = 32.5% → 33, not the 25% mean of child percents

	r := progress.BuildRollup(buildInput())

	assertDec(t, "80", r.Metrics.TotalMH)
	assertDec(t, "26", r.Metrics.EarnedMH)
	assert.Equal(t, int64(33), r.Metrics.PercentComplete)
	assert.Equal(t, progress.StatusInProgress, r.Metrics.Status)
}

func TestBuildRollup_SumsHoldForAnyPhaseAssignment(t *testing.T) {
	// GIVEN: Random activities scattered over random phases of two WBS
	// WHEN: Rolling up
	// THEN: Every parent equals the sum of its children, and the project
	//       equals the sum over activities whatever the assignment

	rng := rand.New(rand.NewSource(7))
	phases := []estimate.Phase{
		{ID: "p-1", WBSID: "w-a"}, {ID: "p-2", WBSID: "w-a"}, {ID: "p-3", WBSID: "w-a"},
		{ID: "p-4", WBSID: "w-b"}, {ID: "p-5", WBSID: "w-b"},
	}
	dates := []progress.Date{
		progress.MustParseDate("2025-03-03"),
		progress.MustParseDate("2025-03-04"),
		progress.MustParseDate("2025-03-05"),
	}

	for iter := 0; iter < 200; iter++ {
		in := progress.RollupInput{
			Project: progress.Project{ID: "proj-1"},
			WBS:     []estimate.WBS{{ID: "w-a"}, {ID: "w-b"}},
			Phases:  phases,
		}
		done := make(map[estimate.ActivityID]decimal.Decimal)
		for i := 0; i < 1+rng.Intn(12); i++ {
			ph := phases[rng.Intn(len(phases))]
			a := estimate.Activity{
				ID:       estimate.ActivityID(fmt.Sprintf("a-%d", i)),
				WBSID:    ph.WBSID,
				PhaseID:  ph.ID,
				Type:     estimate.TypeLabor,
				Quantity: decimal.New(rng.Int63n(500), -1),
				Labor: &estimate.Labor{
					CraftConstant:  decimal.New(rng.Int63n(300), -2),
					WelderConstant: decimal.New(rng.Int63n(50), -2),
				},
			}
			in.Activities = append(in.Activities, a)
			for _, d := range dates {
				if rng.Intn(2) == 0 {
					continue
				}
				qty := decimal.New(rng.Int63n(200), -1)
				in.Entries = append(in.Entries, progress.ProgressEntry{ActivityID: a.ID, EntryDate: d, QuantityCompleted: qty})
				done[a.ID] = done[a.ID].Add(qty)
			}
		}

		r := progress.BuildRollup(in)

		total, earned := decimal.Zero, decimal.Zero
		for _, a := range in.Activities {
			m := progress.RollupActivity(a, done[a.ID]).Metrics
			total, earned = total.Add(m.TotalMH), earned.Add(m.EarnedMH)
		}
		require.True(t, total.Equal(r.Metrics.TotalMH), "iteration %d: total %s != %s", iter, total, r.Metrics.TotalMH)
		require.True(t, earned.Equal(r.Metrics.EarnedMH), "iteration %d: earned %s != %s", iter, earned, r.Metrics.EarnedMH)
		require.Equal(t, progress.PercentComplete(earned, total), r.Metrics.PercentComplete, "iteration %d", iter)

		wbsTotal, wbsEarned := decimal.Zero, decimal.Zero
		for _, w := range r.WBS {
			phTotal, phEarned := decimal.Zero, decimal.Zero
			for _, ph := range w.Phases {
				actTotal, actEarned := decimal.Zero, decimal.Zero
				for _, a := range ph.Activities {
					require.Equal(t, ph.Phase.ID, a.Activity.PhaseID)
					actTotal, actEarned = actTotal.Add(a.Metrics.TotalMH), actEarned.Add(a.Metrics.EarnedMH)
				}
				require.True(t, actTotal.Equal(ph.Metrics.TotalMH), "iteration %d phase %s", iter, ph.Phase.ID)
				require.True(t, actEarned.Equal(ph.Metrics.EarnedMH), "iteration %d phase %s", iter, ph.Phase.ID)
				phTotal, phEarned = phTotal.Add(ph.Metrics.TotalMH), phEarned.Add(ph.Metrics.EarnedMH)
			}
			require.True(t, phTotal.Equal(w.Metrics.TotalMH), "iteration %d wbs %s", iter, w.WBS.ID)
			require.True(t, phEarned.Equal(w.Metrics.EarnedMH), "iteration %d wbs %s", iter, w.WBS.ID)
			require.Equal(t, progress.PercentComplete(phEarned, phTotal), w.Metrics.PercentComplete)
			wbsTotal, wbsEarned = wbsTotal.Add(w.Metrics.TotalMH), wbsEarned.Add(w.Metrics.EarnedMH)
		}
		require.True(t, wbsTotal.Equal(r.Metrics.TotalMH), "iteration %d", iter)
		require.True(t, wbsEarned.Equal(r.Metrics.EarnedMH), "iteration %d", iter)
	}
}

func TestBuildRollup_OrderAndEmptyNodes(t *testing.T) {
	r := progress.BuildRollup(buildInput())

	require.Len(t, r.WBS, 3)
	assert.Equal(t, estimate.WBSID("w-pipe"), r.WBS[0].WBS.ID)
	assert.Equal(t, estimate.WBSID("w-civil"), r.WBS[1].WBS.ID)

	empty := r.FindWBS("w-empty")
	require.NotNil(t, empty)
	assert.Empty(t, empty.Phases)
	assert.True(t, empty.Metrics.TotalMH.IsZero())
	assert.Equal(t, int64(0), empty.Metrics.PercentComplete)
	assert.Equal(t, progress.StatusNotStarted, empty.Metrics.Status)

	paint := r.FindPhase("p-paint")
	require.NotNil(t, paint)
	assert.Empty(t, paint.Activities)
	assert.Equal(t, progress.StatusNotStarted, paint.Metrics.Status)

	// Material lines never enter the tree.
	cs := r.FindPhase("p-cs")
	require.NotNil(t, cs)
	require.Len(t, cs.Activities, 1)
	assert.Equal(t, estimate.ActivityID("a-weld"), cs.Activities[0].Activity.ID)

	assert.Len(t, r.Activities(), 2)
	assert.Nil(t, r.FindWBS("nope"))
	assert.Nil(t, r.FindPhase("nope"))
}

func TestBuildRollup_DayBreakdown(t *testing.T) {
	in := buildInput()
	in.AsOf = progress.MustParseDate("2025-03-04")

	r := progress.BuildRollup(in)
	weld := r.FindPhase("p-cs").Activities[0]

	require.NotNil(t, weld.Day)
	assertDec(t, "30", weld.Day.PreviousTotal)
	assertDec(t, "10", weld.Day.TodaysEntry)
	assertDec(t, "40", weld.Day.NewTotal)
	assertDec(t, "60", weld.Day.Remaining)
}

func TestBuildRollup_NoDayBreakdownWithoutAsOf(t *testing.T) {
	r := progress.BuildRollup(buildInput())
	for _, a := range r.Activities() {
		assert.Nil(t, a.Day)
	}
}
