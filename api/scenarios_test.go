package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truss/momentum/progress"
	"github.com/truss/momentum/progress/store"
	"github.com/truss/momentum/store/sqlite"
)

func TestScenarios_LoadEachOnSQLite(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			// GIVEN: A fresh SQLite store
			st, err := sqlite.New(":memory:")
			require.NoError(t, err)
			defer st.Close()
			svc := progress.NewService(st, zerolog.Nop())
			ctx := context.Background()

			// WHEN: The scenario is loaded twice
			_, err = LoadScenario(ctx, svc, sc.ID)
			require.NoError(t, err)
			projectID, err := LoadScenario(ctx, svc, sc.ID)
			require.NoError(t, err)

			// THEN: Exactly one project exists, with progress recorded
			list, err := svc.ListProjects(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, projectID, list[0].Project.ID)
			assert.True(t, list[0].Metrics.EarnedMH.IsPositive())
			assert.Equal(t, progress.StatusInProgress, list[0].Metrics.Status)
			assert.False(t, list[0].Project.LastEntryDate.IsZero())
		})
	}
}

func TestScenarios_PipeRackHasOverCompletedLine(t *testing.T) {
	ctx := context.Background()
	svc := progress.NewService(store.NewMemory(), zerolog.Nop())
	projectID, err := LoadScenario(ctx, svc, "pipe-rack")
	require.NoError(t, err)

	phase, err := svc.GetPhaseRollup(ctx, projectID, "pr-pipe-cs")
	require.NoError(t, err)
	require.NotNil(t, phase)
	weld := phase.Activities[0]
	assert.Equal(t, int64(110), weld.Metrics.PercentComplete)
	assert.Equal(t, progress.StatusComplete, weld.Metrics.Status)
}

func TestScenarioHandlers(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = s.do("POST", "/api/scenarios/load", `{"scenario_id": "tank-farm"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[LoadScenarioResponse](t, rec).ProjectID)

	rec = s.do("GET", "/api/scenarios/current", "")
	assert.Equal(t, "tank-farm", decode[map[string]string](t, rec)["scenario_id"])

	rec = s.do("POST", "/api/scenarios/load", `{"scenario_id": "moon-base"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
