package adaptive

import (
	"log/slog"
	"time"

	"github.com/mathspractice/adaptive/internal/domain/performance"
	"github.com/mathspractice/adaptive/internal/id"
)

// Intervention is a proposed change of level or module. It is created
// only at checkpoints and never modified afterwards.
type Intervention struct {
	ID                  string     `json:"id"`
	Kind                Kind       `json:"kind"`
	TriggeredAtQuestion int        `json:"triggered_at_question"`
	CurrentLevel        int        `json:"current_level"`
	SuggestedLevel      *int       `json:"suggested_level"` // nil for switch_module
	ModuleID            string     `json:"module_id"`
	Confidence          Confidence `json:"confidence"`
	Reason              string     `json:"reason"`
	Message             string     `json:"message"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Suggested returns the suggested level, if any.
func (iv Intervention) Suggested() (int, bool) {
	if iv.SuggestedLevel == nil {
		return 0, false
	}
	return *iv.SuggestedLevel, true
}

// Response records how the learner answered an intervention.
type Response struct {
	Intervention Intervention `json:"intervention"`
	Accepted     bool         `json:"accepted"`
	RespondedAt  time.Time    `json:"responded_at"`
}

// Engine turns session metrics into confidence snapshots and checkpoint
// interventions. One Engine serves one session at a time: the accepted
// intervention count is per session.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	enabled bool

	accepted int
}

// NewEngine validates cfg and returns an engine for a fresh session.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.With("component", "adaptive"),
		now:     time.Now,
		enabled: cfg.Enabled,
	}, nil
}

// Config returns the engine configuration including the current
// enabled state.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Enabled = e.enabled
	return cfg
}

// SetEnabled turns checkpoint interventions on or off.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled = enabled
	e.logger.Info("adaptive interventions toggled", "enabled", enabled)
}

func (e *Engine) Enabled() bool {
	return e.enabled
}

// AcceptedCount returns the interventions accepted in this session.
func (e *Engine) AcceptedCount() int {
	return e.accepted
}

// ResetSession clears the per-session counter. Hosts call it whenever a
// new session begins.
func (e *Engine) ResetSession() {
	e.accepted = 0
}

// CheckForIntervention evaluates a checkpoint. The gates run in order and
// any failing gate means no intervention.
func (e *Engine) CheckForIntervention(questionNumber int, m performance.SessionMetrics, currentLevel int) (Intervention, bool) {
	if !e.enabled {
		return Intervention{}, false
	}
	if questionNumber <= 0 || questionNumber%e.cfg.CheckpointInterval != 0 {
		return Intervention{}, false
	}
	if e.accepted >= e.cfg.MaxAcceptedInterventions {
		e.logger.Debug("intervention cap reached",
			"session_id", m.SessionID,
			"accepted", e.accepted,
		)
		return Intervention{}, false
	}
	if !m.HasEnoughData() {
		return Intervention{}, false
	}

	conf := e.ComputeConfidence(m)
	if !conf.Available() {
		return Intervention{}, false
	}

	e.logger.Debug("checkpoint",
		"session_id", m.SessionID,
		"question", questionNumber,
		"confidence", conf.Score,
		"band", conf.Band.String(),
	)
	if conf.Band.InZone() {
		return Intervention{}, false
	}

	var kind Kind
	switch conf.Band {
	case BandCritical, BandStruggling:
		kind = KindDecrease
		if currentLevel <= performance.MinLevel {
			kind = KindSwitchModule
		}
	case BandExcelling:
		if currentLevel >= performance.MaxLevel {
			return Intervention{}, false
		}
		kind = KindIncrease
	default:
		return Intervention{}, false
	}

	iv := e.newIntervention(kind, conf, questionNumber, currentLevel, m.ModuleID)
	e.logger.Info("intervention created",
		"session_id", m.SessionID,
		"intervention_id", iv.ID,
		"kind", kind.String(),
		"current_level", currentLevel,
	)
	return iv, true
}

func (e *Engine) newIntervention(kind Kind, conf Confidence, questionNumber, currentLevel int, moduleID string) Intervention {
	iv := Intervention{
		ID:                  id.New(),
		Kind:                kind,
		TriggeredAtQuestion: questionNumber,
		CurrentLevel:        currentLevel,
		ModuleID:            moduleID,
		Confidence:          conf,
		CreatedAt:           e.now(),
	}

	switch kind {
	case KindDecrease:
		level := currentLevel - 1
		iv.SuggestedLevel = &level
		iv.Reason = "Student is struggling at current level"
		if conf.Band == BandCritical {
			iv.Message = "These questions are very challenging for you right now. Let's try an easier level where you can build your confidence!"
		} else {
			iv.Message = "You're working really hard! Let's try an easier level to help you feel more confident."
		}
	case KindIncrease:
		level := currentLevel + 1
		iv.SuggestedLevel = &level
		iv.Reason = "Student is excelling at current level"
		iv.Message = "You're doing brilliantly! These questions seem easy for you. Would you like to try a harder level?"
	case KindSwitchModule:
		iv.Reason = "Student struggling at easiest level"
		iv.Message = "These questions are tricky. Would you like to try a different type of maths practice?"
	}
	return iv
}

// RecordInterventionResponse applies the learner's decision. Only
// accepted interventions count toward the per-session cap; a declined one
// is dropped and may be offered again at the next checkpoint.
func (e *Engine) RecordInterventionResponse(iv Intervention, accepted bool) Response {
	if accepted {
		e.accepted++
	}
	e.logger.Info("intervention response",
		"intervention_id", iv.ID,
		"kind", iv.Kind.String(),
		"accepted", accepted,
		"accepted_total", e.accepted,
		"max_accepted", e.cfg.MaxAcceptedInterventions,
	)
	return Response{
		Intervention: iv,
		Accepted:     accepted,
		RespondedAt:  e.now(),
	}
}
