package simulation_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
	"github.com/mathspractice/adaptive/internal/simulation"
)

func newRunner(workers int) *simulation.Runner {
	return simulation.NewRunner(adaptive.DefaultConfig(), workers, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRun_ScriptedProfiles(t *testing.T) {
	profiles := []simulation.Profile{
		{Name: "fast", StartLevel: 3, Pattern: "C", ResponseTimeMs: 2000, Questions: 20, AcceptInterventions: true},
		{Name: "decliner", StartLevel: 3, Pattern: "C", ResponseTimeMs: 2000, Questions: 20},
		{Name: "struggling", StartLevel: 2, Pattern: "CICICICIII", ResponseTimeMs: 17000, Questions: 10, AcceptInterventions: true},
		{Name: "floor", StartLevel: 1, Pattern: "CICICICIII", ResponseTimeMs: 17000, Questions: 10, AcceptInterventions: true},
	}
	const runs = 6

	reports := newRunner(4).Run(profiles, runs)
	if len(reports) != len(profiles) {
		t.Fatalf("expected %d reports, got %d", len(profiles), len(reports))
	}
	for i, rep := range reports {
		if rep.Profile != profiles[i].Name {
			t.Errorf("report %d: expected %s, got %s", i, profiles[i].Name, rep.Profile)
		}
		if rep.Sessions != runs || rep.Failed != 0 {
			t.Errorf("%s: expected %d clean sessions, got %d (%d failed)", rep.Profile, runs, rep.Sessions, rep.Failed)
		}
	}

	fast := reports[0]
	if fast.FinalLevels[4] != runs || fast.Offered[adaptive.KindIncrease] != runs || fast.AverageScore != 100 {
		t.Errorf("fast: unexpected report %+v", fast)
	}

	decliner := reports[1]
	if decliner.FinalLevels[3] != runs || decliner.Offered[adaptive.KindIncrease] != 4*runs || decliner.Accepted != 0 {
		t.Errorf("decliner: unexpected report %+v", decliner)
	}

	struggling := reports[2]
	if struggling.FinalLevels[1] != runs || struggling.Offered[adaptive.KindDecrease] != runs || struggling.CompletedEarly != 0 {
		t.Errorf("struggling: unexpected report %+v", struggling)
	}

	floor := reports[3]
	if floor.Offered[adaptive.KindSwitchModule] != runs || floor.CompletedEarly != runs || floor.FinalLevels[1] != runs {
		t.Errorf("floor: unexpected report %+v", floor)
	}
}

func TestRun_InvalidProfileReportsFailure(t *testing.T) {
	reports := newRunner(2).Run([]simulation.Profile{
		{Name: "bad-level", StartLevel: 9, Pattern: "C", Questions: 5},
		{Name: "no-questions", StartLevel: 2, Pattern: "C"},
	}, 2)

	for _, rep := range reports {
		if rep.Failed != 2 || rep.Sessions != 0 {
			t.Errorf("%s: expected 2 failures, got %+v", rep.Profile, rep)
		}
	}
}

func TestDefaultProfiles_RunCleanly(t *testing.T) {
	for _, rep := range newRunner(3).Run(simulation.DefaultProfiles(), 2) {
		if rep.Failed != 0 {
			t.Errorf("%s: expected no failures, got %d", rep.Profile, rep.Failed)
		}
		if !strings.HasPrefix(rep.String(), rep.Profile) {
			t.Errorf("expected report line to start with the profile, got %q", rep.String())
		}
	}
}
