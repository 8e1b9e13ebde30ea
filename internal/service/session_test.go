package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
	"github.com/mathspractice/adaptive/internal/domain/performance"
	practicesession "github.com/mathspractice/adaptive/internal/domain/practice_session"
	"github.com/mathspractice/adaptive/internal/domain/recommend"
	"github.com/mathspractice/adaptive/internal/domain/student"
	"github.com/mathspractice/adaptive/internal/events"
	"github.com/mathspractice/adaptive/internal/service"
	"github.com/mathspractice/adaptive/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	svc   *service.SessionService
	store *store.SQLiteStore
	pub   *recorder
	st    *student.Student
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	st := student.New("Ava", "Year 4")
	if err := s.SaveStudent(context.Background(), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pub := &recorder{}
	svc, err := service.NewSessionService(s, adaptive.DefaultConfig(), pub, nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &fixture{svc: svc, store: s, pub: pub, st: st}
}

func intPtr(n int) *int { return &n }
func boolPtr(b bool) *bool { return &b }

func (f *fixture) start(t *testing.T, req service.StartRequest) practicesession.View {
	t.Helper()
	if req.StudentID == "" {
		req.StudentID = f.st.ID
	}
	if req.ModuleID == "" {
		req.ModuleID = "C01"
	}
	started, err := f.svc.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return started.Session
}

func (f *fixture) answer(t *testing.T, sessionID string, correct bool, ms int) practicesession.AnswerResult {
	t.Helper()
	res, err := f.svc.SubmitAnswer(context.Background(), sessionID, performance.AnswerEvent{Correct: correct, ResponseTimeMs: ms})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func TestStart_UsesRecommendationWhenNoLevelGiven(t *testing.T) {
	f := newFixture(t)

	started, err := f.svc.Start(context.Background(), service.StartRequest{StudentID: f.st.ID, ModuleID: "C01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started.Recommendation == nil {
		t.Fatal("expected a recommendation")
	}
	if started.Recommendation.Rule != recommend.RuleDefault {
		t.Errorf("expected default rule, got %s", started.Recommendation.Rule)
	}
	if started.Session.Level != recommend.DefaultLevel {
		t.Errorf("expected level %d, got %d", recommend.DefaultLevel, started.Session.Level)
	}
	if started.Session.MaxQuestions == nil || *started.Session.MaxQuestions != student.DefaultQuestionCount {
		t.Errorf("expected max questions from preferences, got %v", started.Session.MaxQuestions)
	}
	if f.svc.ActiveSessions() != 1 {
		t.Errorf("expected 1 active session, got %d", f.svc.ActiveSessions())
	}

	rec, err := f.store.GetSession(context.Background(), started.Session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != store.StatusInProgress {
		t.Errorf("expected in_progress, got %s", rec.Status)
	}
}

func TestStart_UnknownStudent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), service.StartRequest{StudentID: "missing", ModuleID: "C01"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStart_InvalidLevel(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), service.StartRequest{StudentID: f.st.ID, ModuleID: "C01", Level: intPtr(7)})
	if !errors.Is(err, practicesession.ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
	if f.svc.ActiveSessions() != 0 {
		t.Errorf("expected no active sessions, got %d", f.svc.ActiveSessions())
	}
}

func TestSession_AcceptIncreaseThenComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.start(t, service.StartRequest{Level: intPtr(3), MaxQuestions: intPtr(10)})

	var res practicesession.AnswerResult
	for i := 0; i < 5; i++ {
		res = f.answer(t, view.ID, true, 2000)
	}
	if res.Intervention == nil {
		t.Fatal("expected an intervention at question 5")
	}
	if res.Intervention.Kind != adaptive.KindIncrease {
		t.Fatalf("expected increase, got %s", res.Intervention.Kind)
	}

	if _, err := f.svc.SubmitAnswer(ctx, view.ID, performance.AnswerEvent{Correct: true}); !errors.Is(err, practicesession.ErrDecisionPending) {
		t.Errorf("expected ErrDecisionPending, got %v", err)
	}

	out, err := f.svc.Respond(ctx, view.ID, res.Intervention.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Level != 4 || out.Completed {
		t.Errorf("expected level 4 and an open session, got %+v", out)
	}

	logs, err := f.svc.Interventions(ctx, view.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 || !logs[0].Accepted || logs[0].ToLevel == nil || *logs[0].ToLevel != 4 {
		t.Errorf("expected one accepted log to level 4, got %+v", logs)
	}

	rec, err := f.svc.Complete(ctx, view.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.FinalLevel != 4 || rec.StartLevel != 3 || rec.AcceptedInterventions != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.FinalScore.Percentage != 100 {
		t.Errorf("expected 100%%, got %d", rec.FinalScore.Percentage)
	}
	if f.svc.ActiveSessions() != 0 {
		t.Errorf("expected no active sessions, got %d", f.svc.ActiveSessions())
	}

	got, err := f.svc.Get(ctx, view.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Live != nil || got.Record == nil || got.Record.Status != store.StatusCompleted {
		t.Errorf("expected a completed stored record, got %+v", got)
	}

	progress, err := f.store.GetModuleProgress(ctx, f.st.ID, "C01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if progress.Levels[3].Attempted != 5 || progress.Levels[3].Correct != 5 {
		t.Errorf("expected 5/5 at level 3, got %+v", progress.Levels[3])
	}

	want := []events.Type{
		events.TypeSessionStarted,
		events.TypeInterventionOffered,
		events.TypeInterventionResolved,
		events.TypeSessionCompleted,
	}
	types := f.pub.types()
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestSession_ClosedAfterComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.start(t, service.StartRequest{Level: intPtr(2)})

	f.answer(t, view.ID, true, 3000)
	if _, err := f.svc.Complete(ctx, view.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.SubmitAnswer(ctx, view.ID, performance.AnswerEvent{Correct: true}); !errors.Is(err, practicesession.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, view.ID); !errors.Is(err, practicesession.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := f.svc.SubmitAnswer(ctx, "missing", performance.AnswerEvent{Correct: true}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSession_SwitchModuleCompletesEarly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.start(t, service.StartRequest{Level: intPtr(1), MaxQuestions: intPtr(0)})

	var final *adaptive.Intervention
	for i, r := range "CICICICIII" {
		res := f.answer(t, view.ID, r == 'C', 17000)
		if res.Intervention == nil {
			continue
		}
		if i == 9 {
			final = res.Intervention
			break
		}
		if _, err := f.svc.Respond(ctx, view.ID, res.Intervention.ID, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if final == nil {
		t.Fatal("expected an intervention at question 10")
	}
	if final.Kind != adaptive.KindSwitchModule {
		t.Fatalf("expected switch_module, got %s", final.Kind)
	}

	out, err := f.svc.Respond(ctx, view.ID, final.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Completed || out.Record == nil || !out.Record.CompletedEarly {
		t.Fatalf("expected an early completion, got %+v", out)
	}

	rec, err := f.store.GetSession(ctx, view.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != store.StatusCompleted || !rec.CompletedEarly {
		t.Errorf("expected a stored early completion, got %+v", rec)
	}
	if f.svc.ActiveSessions() != 0 {
		t.Errorf("expected no active sessions, got %d", f.svc.ActiveSessions())
	}
}

func TestRespond_WrongIntervention(t *testing.T) {
	f := newFixture(t)
	view := f.start(t, service.StartRequest{Level: intPtr(3)})

	if _, err := f.svc.Respond(context.Background(), view.ID, "nope", true); !errors.Is(err, practicesession.ErrNoPendingIntervention) {
		t.Errorf("expected ErrNoPendingIntervention, got %v", err)
	}
}

func TestChangeLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.start(t, service.StartRequest{Level: intPtr(3)})

	got, err := f.svc.ChangeLevel(ctx, view.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Level != 1 {
		t.Errorf("expected level 1, got %d", got.Level)
	}
	if _, err := f.svc.ChangeLevel(ctx, view.ID, 0); !errors.Is(err, practicesession.ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestRecommend_AdvancesAfterStrongSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		view := f.start(t, service.StartRequest{Level: intPtr(3), Adaptive: boolPtr(false)})
		for q := 0; q < 5; q++ {
			f.answer(t, view.ID, true, 3000)
		}
		if _, err := f.svc.Complete(ctx, view.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	rec, err := f.svc.Recommend(ctx, f.st.ID, "C01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Level != 4 || rec.Rule != recommend.RuleAdvance {
		t.Errorf("expected advance to 4, got level %d rule %s", rec.Level, rec.Rule)
	}

	other, err := f.svc.Recommend(ctx, f.st.ID, "C02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Level != recommend.DefaultLevel {
		t.Errorf("expected default level for another module, got %d", other.Level)
	}
}

func TestRecommend_UnknownStudent(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Recommend(context.Background(), "missing", "C01"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanup_RemovesCompletedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := f.start(t, service.StartRequest{Level: intPtr(2)})
	if _, err := f.svc.Complete(ctx, done.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	open := f.start(t, service.StartRequest{Level: intPtr(2)})

	n, err := f.svc.Cleanup(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	if _, err := f.store.GetSession(ctx, done.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected completed session removed, got %v", err)
	}
	if _, err := f.store.GetSession(ctx, open.ID); err != nil {
		t.Errorf("expected open session kept, got %v", err)
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	view := f.start(t, service.StartRequest{Level: intPtr(3)})
	if _, err := f.svc.Complete(context.Background(), view.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewSessionService_RejectsInvalidConfig(t *testing.T) {
	cfg := adaptive.DefaultConfig()
	cfg.CheckpointInterval = 0

	_, err := service.NewSessionService(nil, cfg, nil, nil, quietLogger())
	if !errors.Is(err, adaptive.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// flakyStore fails CompleteSession while failComplete is set.
type flakyStore struct {
	*store.SQLiteStore
	mu           sync.Mutex
	failComplete error
}

func (s *flakyStore) CompleteSession(ctx context.Context, rec practicesession.Record) error {
	s.mu.Lock()
	err := s.failComplete
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.SQLiteStore.CompleteSession(ctx, rec)
}

func (s *flakyStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failComplete = nil
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyStore) {
	t.Helper()
	f := newFixture(t)
	fs := &flakyStore{SQLiteStore: f.store, failComplete: errors.New("disk full")}
	svc, err := service.NewSessionService(fs, adaptive.DefaultConfig(), f.pub, nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.svc = svc
	return f, fs
}

func countType(types []events.Type, want events.Type) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}

func TestComplete_SaveFailureKeepsSessionLive(t *testing.T) {
	f, fs := newFlakyFixture(t)
	ctx := context.Background()
	view := f.start(t, service.StartRequest{Level: intPtr(2)})
	f.answer(t, view.ID, true, 3000)

	if _, err := f.svc.Complete(ctx, view.ID); err == nil {
		t.Fatal("expected an error when the record cannot be saved")
	}
	if f.svc.ActiveSessions() != 1 {
		t.Errorf("expected the session to stay live, got %d active", f.svc.ActiveSessions())
	}
	if n := countType(f.pub.types(), events.TypeSessionCompleted); n != 0 {
		t.Errorf("expected no completion event, got %d", n)
	}
	rec, err := f.store.GetSession(ctx, view.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != store.StatusInProgress {
		t.Errorf("expected in_progress, got %s", rec.Status)
	}

	fs.heal()
	got, err := f.svc.Complete(ctx, view.ID)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got.FinalScore.Total != 1 {
		t.Errorf("expected 1 question in the record, got %d", got.FinalScore.Total)
	}

	rec, err = f.store.GetSession(ctx, view.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != store.StatusCompleted || rec.FinalScore.Total != 1 {
		t.Errorf("expected a stored completion with 1 question, got %+v", rec)
	}
	if f.svc.ActiveSessions() != 0 {
		t.Errorf("expected no active sessions, got %d", f.svc.ActiveSessions())
	}
	if n := countType(f.pub.types(), events.TypeSessionCompleted); n != 1 {
		t.Errorf("expected 1 completion event, got %d", n)
	}
	if _, err := f.svc.Complete(ctx, view.ID); !errors.Is(err, practicesession.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed after a saved completion, got %v", err)
	}
}

func TestRespond_SwitchModuleSaveFailureIsRetryable(t *testing.T) {
	f, fs := newFlakyFixture(t)
	ctx := context.Background()
	view := f.start(t, service.StartRequest{Level: intPtr(1), MaxQuestions: intPtr(0)})

	var final *adaptive.Intervention
	for i, r := range "CICICICIII" {
		res := f.answer(t, view.ID, r == 'C', 17000)
		if res.Intervention == nil {
			continue
		}
		if i == 9 {
			final = res.Intervention
			break
		}
		if _, err := f.svc.Respond(ctx, view.ID, res.Intervention.ID, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if final == nil || final.Kind != adaptive.KindSwitchModule {
		t.Fatalf("expected switch_module at question 10, got %+v", final)
	}

	if _, err := f.svc.Respond(ctx, view.ID, final.ID, true); err == nil {
		t.Fatal("expected an error when the record cannot be saved")
	}
	if f.svc.ActiveSessions() != 1 {
		t.Errorf("expected the session to stay live, got %d active", f.svc.ActiveSessions())
	}

	fs.heal()
	got, err := f.svc.Complete(ctx, view.ID)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !got.CompletedEarly {
		t.Error("expected the retried record to keep the early completion")
	}
	rec, err := f.store.GetSession(ctx, view.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != store.StatusCompleted || !rec.CompletedEarly || rec.FinalScore.Total != 10 {
		t.Errorf("expected a stored early completion after 10 questions, got %+v", rec)
	}
}

// stalled blocks every publish until its context ends.
type stalled struct {
	mu   sync.Mutex
	errs []error
}

func (s *stalled) Publish(ctx context.Context, _ events.Event) error {
	<-ctx.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, ctx.Err())
	return ctx.Err()
}

func (s *stalled) Close() error { return nil }

func TestStalledPublisherIsBounded(t *testing.T) {
	f := newFixture(t)
	pub := &stalled{}
	svc, err := service.NewSessionService(f.store, adaptive.DefaultConfig(), pub, nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.SetPublishTimeout(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Start(context.Background(), service.StartRequest{StudentID: f.st.ID, ModuleID: "C01", Level: intPtr(2)})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected Start to return despite a stalled publisher")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.errs) != 1 || !errors.Is(pub.errs[0], context.DeadlineExceeded) {
		t.Errorf("expected one publish cut off by its deadline, got %v", pub.errs)
	}
}
