package adaptive

import "fmt"

// Band classifies a confidence score.
type Band int

const (
	BandNone Band = iota // no score yet
	BandCritical
	BandStruggling
	BandChallenging
	BandOptimal
	BandExcelling
)

var bandNames = [...]string{
	BandNone:        "",
	BandCritical:    "Critical",
	BandStruggling:  "Struggling",
	BandChallenging: "Challenging",
	BandOptimal:     "Optimal",
	BandExcelling:   "Excelling",
}

func (b Band) String() string {
	if b < 0 || int(b) >= len(bandNames) {
		return fmt.Sprintf("Band(%d)", int(b))
	}
	return bandNames[b]
}

func (b Band) MarshalText() ([]byte, error) {
	if b <= BandNone || int(b) >= len(bandNames) {
		return nil, fmt.Errorf("band %d has no text form", int(b))
	}
	return []byte(bandNames[b]), nil
}

func (b *Band) UnmarshalText(text []byte) error {
	for i := BandCritical; int(i) < len(bandNames); i++ {
		if bandNames[i] == string(text) {
			*b = i
			return nil
		}
	}
	return fmt.Errorf("unknown band %q", string(text))
}

// InZone reports whether the band is part of the target zone where no
// intervention is offered.
func (b Band) InZone() bool {
	return b == BandChallenging || b == BandOptimal
}

// Kind is the type of an intervention.
type Kind int

const (
	KindDecrease Kind = iota + 1
	KindIncrease
	KindSwitchModule
)

var kindNames = map[Kind]string{
	KindDecrease:     "decrease",
	KindIncrease:     "increase",
	KindSwitchModule: "switch_module",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("invalid intervention kind %d", int(k))
	}
	return []byte(s), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown intervention kind %q", string(text))
}

// Factor names one input of the confidence score.
type Factor int

const (
	FactorAccuracy Factor = iota
	FactorResponseTime
	FactorHints
	FactorConsistency
	FactorStreak
)

var factorNames = [...]string{
	FactorAccuracy:     "accuracy",
	FactorResponseTime: "response_time",
	FactorHints:        "hints",
	FactorConsistency:  "consistency",
	FactorStreak:       "streak",
}

// Factors lists every factor in scoring order.
func Factors() []Factor {
	return []Factor{FactorAccuracy, FactorResponseTime, FactorHints, FactorConsistency, FactorStreak}
}

func (f Factor) String() string {
	if f < 0 || int(f) >= len(factorNames) {
		return fmt.Sprintf("Factor(%d)", int(f))
	}
	return factorNames[f]
}

func (f Factor) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(factorNames) {
		return nil, fmt.Errorf("invalid factor %d", int(f))
	}
	return []byte(factorNames[f]), nil
}

func (f *Factor) UnmarshalText(text []byte) error {
	for i, name := range factorNames {
		if name == string(text) {
			*f = Factor(i)
			return nil
		}
	}
	return fmt.Errorf("unknown factor %q", string(text))
}
