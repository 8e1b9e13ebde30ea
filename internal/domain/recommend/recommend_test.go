package recommend_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/recommend"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// sessions builds summaries newest first from the given percentages.
func sessions(level int, percentages ...int) []recommend.SessionSummary {
	out := make([]recommend.SessionSummary, len(percentages))
	for i, p := range percentages {
		out[i] = recommend.SessionSummary{
			SessionID:   "s",
			CompletedAt: base.Add(-time.Duration(i) * time.Hour),
			Level:       level,
			FinalScore:  recommend.Score{Correct: p / 10, Total: 10, Percentage: p},
		}
	}
	return out
}

func historyOf(byLevel map[int][]recommend.SessionSummary) recommend.History {
	return func(level int) []recommend.SessionSummary {
		return byLevel[level]
	}
}

func TestNewScore(t *testing.T) {
	s := recommend.NewScore(2, 3)
	if s.Percentage != 67 {
		t.Errorf("expected 67, got %d", s.Percentage)
	}
	if z := recommend.NewScore(0, 0); z.Percentage != 0 {
		t.Errorf("expected 0 for an empty session, got %d", z.Percentage)
	}
}

func TestComputePerformanceWindow_Empty(t *testing.T) {
	w := recommend.ComputePerformanceWindow(nil)
	if w.Trend != recommend.TrendInsufficientData {
		t.Errorf("expected insufficient_data, got %s", w.Trend)
	}
	if w.AverageAccuracy != 0 || w.Sessions != 0 {
		t.Errorf("expected empty window, got %+v", w)
	}
}

func TestComputePerformanceWindow_SingleSessionIsStable(t *testing.T) {
	w := recommend.ComputePerformanceWindow(sessions(2, 40))
	if w.Trend != recommend.TrendStable {
		t.Errorf("expected stable, got %s", w.Trend)
	}
	if w.AverageAccuracy != 40 {
		t.Errorf("expected 40, got %d", w.AverageAccuracy)
	}
}

func TestComputePerformanceWindow_Trend(t *testing.T) {
	tests := []struct {
		name        string
		percentages []int
		want        recommend.Trend
	}{
		{"improving", []int{80, 70, 60}, recommend.TrendImproving},
		{"declining", []int{40, 50, 60}, recommend.TrendDeclining},
		{"exactly ten up is stable", []int{70, 60}, recommend.TrendStable},
		{"exactly ten down is stable", []int{50, 60}, recommend.TrendStable},
		{"only the newest three count", []int{50, 55, 60, 10}, recommend.TrendStable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := recommend.ComputePerformanceWindow(sessions(3, tc.percentages...))
			if w.Trend != tc.want {
				t.Errorf("expected %s, got %s", tc.want, w.Trend)
			}
		})
	}
}

func TestComputePerformanceWindow_LimitAndAverage(t *testing.T) {
	w := recommend.ComputePerformanceWindow(sessions(3, 90, 85, 80, 0, 0))
	if w.Sessions != 3 {
		t.Fatalf("expected 3 sessions, got %d", w.Sessions)
	}
	if w.AverageAccuracy != 85 {
		t.Errorf("expected 85, got %d", w.AverageAccuracy)
	}
}

func TestComputePerformanceWindow_SortsByRecency(t *testing.T) {
	h := sessions(3, 90, 50)
	h[0], h[1] = h[1], h[0]

	w := recommend.ComputePerformanceWindow(h)
	if w.Accuracies[0] != 90 {
		t.Errorf("expected newest accuracy first, got %v", w.Accuracies)
	}
	if w.Trend != recommend.TrendImproving {
		t.Errorf("expected improving, got %s", w.Trend)
	}
}

func TestComputePerformanceWindow_RoundsAverage(t *testing.T) {
	w := recommend.ComputePerformanceWindow(sessions(1, 67, 66, 66))
	if w.AverageAccuracy != 66 {
		t.Errorf("expected 66, got %d", w.AverageAccuracy)
	}
}

func TestRecommendLevel_AdvanceFromStrongLevel(t *testing.T) {
	rec := recommend.RecommendLevel(historyOf(map[int][]recommend.SessionSummary{
		3: sessions(3, 85, 90),
	}), recommend.DefaultLevel)

	if rec.Level != 4 {
		t.Errorf("expected 4, got %d", rec.Level)
	}
	if rec.Rule != recommend.RuleAdvance || rec.BasisLevel != 3 {
		t.Errorf("expected advance from level 3, got %s from %d", rec.Rule, rec.BasisLevel)
	}
}

func TestRecommendLevel_Rules(t *testing.T) {
	tests := []struct {
		name    string
		history map[int][]recommend.SessionSummary
		def     int
		level   int
		rule    recommend.Rule
	}{
		{"no history keeps default", nil, 2, 2, recommend.RuleDefault},
		{"invalid default falls back", nil, 9, recommend.DefaultLevel, recommend.RuleDefault},
		{"one session is not enough", map[int][]recommend.SessionSummary{2: sessions(2, 95)}, 1, 1, recommend.RuleDefault},
		{"advance capped at 4", map[int][]recommend.SessionSummary{4: sessions(4, 90, 80)}, 1, 4, recommend.RuleAdvance},
		{"consolidate", map[int][]recommend.SessionSummary{2: sessions(2, 70, 60)}, 4, 2, recommend.RuleConsolidate},
		{"step down on decline", map[int][]recommend.SessionSummary{2: sessions(2, 30, 50)}, 4, 1, recommend.RuleStepDown},
		{"step down floored at 1", map[int][]recommend.SessionSummary{1: sessions(1, 20, 45)}, 3, 1, recommend.RuleStepDown},
		{"low but stable falls through", map[int][]recommend.SessionSummary{2: sessions(2, 50, 55)}, 3, 3, recommend.RuleDefault},
		{"highest qualifying level wins", map[int][]recommend.SessionSummary{
			4: sessions(4, 65, 70),
			1: sessions(1, 95, 100),
		}, 2, 4, recommend.RuleConsolidate},
		{"weak top level is skipped", map[int][]recommend.SessionSummary{
			4: sessions(4, 40, 45),
			2: sessions(2, 85, 85),
		}, 1, 3, recommend.RuleAdvance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := recommend.RecommendLevel(historyOf(tc.history), tc.def)
			if rec.Level != tc.level {
				t.Errorf("expected level %d, got %d", tc.level, rec.Level)
			}
			if rec.Rule != tc.rule {
				t.Errorf("expected rule %s, got %s", tc.rule, rec.Rule)
			}
		})
	}
}

func TestRecommendLevel_StopsScanning(t *testing.T) {
	var asked []int
	history := func(level int) []recommend.SessionSummary {
		asked = append(asked, level)
		if level == 3 {
			return sessions(3, 70, 70)
		}
		return nil
	}

	rec := recommend.RecommendLevel(history, 1)
	if rec.Level != 3 {
		t.Fatalf("expected 3, got %d", rec.Level)
	}
	if len(asked) != 2 || asked[0] != 4 || asked[1] != 3 {
		t.Errorf("expected levels 4 then 3 to be evaluated, got %v", asked)
	}
	if len(rec.Windows) != 2 {
		t.Errorf("expected 2 windows, got %d", len(rec.Windows))
	}
}

func TestRecommendLevel_NilHistory(t *testing.T) {
	rec := recommend.RecommendLevel(nil, 0)
	if rec.Level != recommend.DefaultLevel || rec.Rule != recommend.RuleDefault {
		t.Errorf("unexpected recommendation: %+v", rec)
	}
}

func TestRecommendation_JSON(t *testing.T) {
	rec := recommend.RecommendLevel(historyOf(map[int][]recommend.SessionSummary{
		2: sessions(2, 30, 50),
	}), 3)

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{`"recommended_level":1`, `"rule":"step_down"`, `"trend":"declining"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
}
