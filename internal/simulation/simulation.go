// simulation/simulation.go
package simulation

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
	"github.com/mathspractice/adaptive/internal/domain/performance"
	practicesession "github.com/mathspractice/adaptive/internal/domain/practice_session"
	"github.com/mathspractice/adaptive/internal/worker"
)

// Profile is a scripted learner. Pattern is read cyclically, 'C' for a
// correct answer and anything else for an incorrect one.
type Profile struct {
	Name                string
	StartLevel          int
	Pattern             string
	ResponseTimeMs      int
	Questions           int
	AcceptInterventions bool
}

// DefaultProfiles covers each branch of the intervention rules.
func DefaultProfiles() []Profile {
	return []Profile{
		{Name: "fast-accurate", StartLevel: 3, Pattern: "C", ResponseTimeMs: 2000, Questions: 20, AcceptInterventions: true},
		{Name: "fast-accurate-declines", StartLevel: 3, Pattern: "C", ResponseTimeMs: 2000, Questions: 20},
		{Name: "steady", StartLevel: 2, Pattern: "CCCCI", ResponseTimeMs: 5000, Questions: 20, AcceptInterventions: true},
		{Name: "struggling", StartLevel: 2, Pattern: "CICICICIII", ResponseTimeMs: 17000, Questions: 20, AcceptInterventions: true},
		{Name: "struggling-at-floor", StartLevel: 1, Pattern: "CICICICIII", ResponseTimeMs: 17000, Questions: 20, AcceptInterventions: true},
		{Name: "untimed", StartLevel: 3, Pattern: "CCCIC", Questions: 15, AcceptInterventions: true},
	}
}

// Outcome is what one simulated session ended with.
type Outcome struct {
	Profile        string
	SessionID      string
	StartLevel     int
	FinalLevel     int
	Answered       int
	Score          int
	Offered        []adaptive.Kind
	Accepted       int
	CompletedEarly bool
	Err            error
}

// Report aggregates the outcomes of one profile.
type Report struct {
	Profile        string
	Sessions       int
	Failed         int
	AverageScore   int
	FinalLevels    map[int]int
	Offered        map[adaptive.Kind]int
	Accepted       int
	CompletedEarly int
}

// Runner drives simulated sessions through a worker pool. Every session
// owns its tracker and engine, so runs never share adaptive state.
type Runner struct {
	engineCfg adaptive.Config
	workers   int
	logger    *slog.Logger
}

func NewRunner(engineCfg adaptive.Config, workers int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		engineCfg: engineCfg,
		workers:   workers,
		logger:    logger.With("component", "simulation"),
	}
}

// Run plays each profile sessionsPerProfile times and returns one report
// per profile, in profile order.
func (r *Runner) Run(profiles []Profile, sessionsPerProfile int) []Report {
	pool := worker.NewPool[Outcome](r.workers, r.workers*2)

	go func() {
		for _, p := range profiles {
			for i := 0; i < sessionsPerProfile; i++ {
				profile := p
				pool.Submit(fmt.Sprintf("%s-%d", p.Name, i), func() Outcome {
					return r.play(profile)
				})
			}
		}
		pool.Close()
	}()

	byProfile := make(map[string][]Outcome, len(profiles))
	for res := range pool.Results() {
		out := res.Output
		if out.Err != nil {
			r.logger.Warn("simulated session failed", "job", res.JobID, "error", out.Err)
		}
		byProfile[out.Profile] = append(byProfile[out.Profile], out)
	}

	reports := make([]Report, 0, len(profiles))
	for _, p := range profiles {
		reports = append(reports, summarize(p.Name, byProfile[p.Name]))
	}
	return reports
}

// play runs one scripted session to the end.
func (r *Runner) play(p Profile) Outcome {
	out := Outcome{Profile: p.Name, StartLevel: p.StartLevel}
	if p.Pattern == "" || p.Questions < 1 {
		out.Err = fmt.Errorf("profile %s: needs a pattern and at least one question", p.Name)
		return out
	}

	sess, err := practicesession.New("sim-"+p.Name, "SIM", p.StartLevel, practicesession.WithMaxQuestions(p.Questions), r.engineCfg, r.logger)
	if err != nil {
		out.Err = err
		return out
	}
	out.SessionID = sess.ID
	if err := sess.Start(); err != nil {
		out.Err = err
		return out
	}

	for q := 0; ; q++ {
		res, err := sess.Answer(performance.AnswerEvent{
			Correct:        p.Pattern[q%len(p.Pattern)] == 'C',
			ResponseTimeMs: p.ResponseTimeMs,
		})
		if err != nil {
			out.Err = err
			return out
		}
		out.Answered = res.QuestionNumber

		if iv := res.Intervention; iv != nil {
			out.Offered = append(out.Offered, iv.Kind)
			decision, err := sess.Respond(iv.ID, p.AcceptInterventions)
			if err != nil {
				out.Err = err
				return out
			}
			if p.AcceptInterventions {
				out.Accepted++
			}
			if decision.Completed && decision.Record != nil {
				return finish(out, *decision.Record)
			}
		}
		if res.Finished {
			break
		}
	}

	rec, err := sess.Complete()
	if err != nil {
		out.Err = err
		return out
	}
	return finish(out, rec)
}

func finish(out Outcome, rec practicesession.Record) Outcome {
	out.FinalLevel = rec.FinalLevel
	out.Score = rec.FinalScore.Percentage
	out.CompletedEarly = rec.CompletedEarly
	return out
}

func summarize(name string, outcomes []Outcome) Report {
	rep := Report{
		Profile:     name,
		FinalLevels: make(map[int]int),
		Offered:     make(map[adaptive.Kind]int),
	}
	total := 0
	for _, o := range outcomes {
		if o.Err != nil {
			rep.Failed++
			continue
		}
		rep.Sessions++
		total += o.Score
		rep.FinalLevels[o.FinalLevel]++
		for _, k := range o.Offered {
			rep.Offered[k]++
		}
		rep.Accepted += o.Accepted
		if o.CompletedEarly {
			rep.CompletedEarly++
		}
	}
	if rep.Sessions > 0 {
		rep.AverageScore = total / rep.Sessions
	}
	return rep
}

// String renders the report on one line.
func (r Report) String() string {
	levels := make([]int, 0, len(r.FinalLevels))
	for l := range r.FinalLevels {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	finals := ""
	for _, l := range levels {
		finals += fmt.Sprintf(" L%d=%d", l, r.FinalLevels[l])
	}

	offered := ""
	for _, k := range []adaptive.Kind{adaptive.KindIncrease, adaptive.KindDecrease, adaptive.KindSwitchModule} {
		if n := r.Offered[k]; n > 0 {
			offered += fmt.Sprintf(" %s=%d", k, n)
		}
	}
	if offered == "" {
		offered = " none"
	}

	return fmt.Sprintf("%-24s sessions=%d failed=%d avg=%d%% final:%s offered:%s accepted=%d early=%d",
		r.Profile, r.Sessions, r.Failed, r.AverageScore, finals, offered, r.Accepted, r.CompletedEarly)
}
