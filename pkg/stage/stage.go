// Package stage defines the sleep-stage vocabulary shared across drowse.
package stage

import "fmt"

// Stage is one predicted sleep stage for a single scoring epoch.
type Stage int

// The five stages scored by the external classifier.
const (
	Wake Stage = iota
	N1
	N2
	N3
	REM
)

// EpochWidth is the scoring epoch duration in seconds. Polysomnography
// scoring uses 30-second epochs and the external classifier emits one
// label per epoch.
const EpochWidth = 30.0

// codes are the wire codes emitted by the external classifier.
var codes = map[Stage]string{
	Wake: "W",
	N1:   "N1",
	N2:   "N2",
	N3:   "N3",
	REM:  "R",
}

// priority orders stages from most wake-like to deepest. A tie between
// stages resolves to the lighter one, which under-calls sleep: when the
// goal is catching a subject falling asleep, a false "awake" is the
// safer mistake than a false "asleep".
var priority = map[Stage]int{
	Wake: 0,
	N1:   1,
	REM:  2,
	N2:   3,
	N3:   4,
}

// String returns the classifier wire code for the stage.
func (s Stage) String() string {
	if code, ok := codes[s]; ok {
		return code
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Valid reports whether the stage is one of the five scored stages.
func (s Stage) Valid() bool {
	_, ok := codes[s]
	return ok
}

// Asleep reports whether the stage counts as sleep. Everything except
// Wake does.
func (s Stage) Asleep() bool {
	return s.Valid() && s != Wake
}

// Priority returns the tie-break rank of the stage: lower ranks are more
// wake-like and win ties during vote combination.
func (s Stage) Priority() int {
	return priority[s]
}

// Parse converts a classifier wire code into a Stage.
func Parse(code string) (Stage, error) {
	for s, c := range codes {
		if c == code {
			return s, nil
		}
	}
	return Wake, fmt.Errorf("unrecognized stage code %q", code)
}

// ParseSequence converts a slice of wire codes into stages, failing on
// the first unrecognized code.
func ParseSequence(wire []string) ([]Stage, error) {
	seq := make([]Stage, len(wire))
	for i, code := range wire {
		s, err := Parse(code)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		seq[i] = s
	}
	return seq, nil
}

// Codes converts a stage sequence back into classifier wire codes.
func Codes(seq []Stage) []string {
	wire := make([]string, len(seq))
	for i, s := range seq {
		wire[i] = s.String()
	}
	return wire
}
