// Package montage validates channel selections and plans the reference
// scheme handed to the external sleep-staging classifier.
package montage

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/samber/lo"
)

// Channel-name digit extraction for the 10-20 electrode system: odd
// indices sit over the left hemisphere, even over the right.
var electrodeIndexRegex = regexp.MustCompile(`[0-9]+`)

// Virtual reference schemes understood by the external toolkit; they are
// passed through without channel validation.
const (
	RefAverage = "average"
	RefREST    = "REST"
)

// Side is a scalp hemisphere in the 10-20 electrode system.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Hemisphere returns which hemisphere a 10-20 channel name belongs to,
// based on the parity of its electrode index (C3 is left, C4 is right).
func Hemisphere(channel string) (Side, error) {
	digits := electrodeIndexRegex.FindString(channel)
	if digits == "" {
		return Left, fmt.Errorf("channel %q has no electrode index; midline and non-10-20 names have no hemisphere", channel)
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return Left, fmt.Errorf("channel %q: parsing electrode index: %w", channel, err)
	}
	if index%2 == 0 {
		return Right, nil
	}
	return Left, nil
}

// Plan is a validated channel selection for one staging run: which EEG
// channels get staged, the optional EOG channel fed alongside each, and
// the reference each EEG channel is re-referenced against.
type Plan struct {
	EEGChannels []string
	EOGChannel  string
	reference   []string
	virtualRef  string
	split       bool
}

// New validates the requested channels against the recording's channel
// inventory and builds a staging plan. The reference may be a list of
// channel names or one of the virtual schemes RefAverage / RefREST.
//
// When the reference is exactly two channels on opposite hemispheres
// (the usual M1/M2 mastoid pair), the plan re-references each EEG
// channel to the contralateral mastoid, which is how clinical
// polysomnography montages are built.
func New(inventory, eegChannels []string, eogChannel string, reference []string) (*Plan, error) {
	if len(eegChannels) == 0 {
		return nil, fmt.Errorf("at least one EEG channel is required")
	}
	if len(reference) == 0 {
		return nil, fmt.Errorf("a reference channel or scheme is required")
	}

	plan := &Plan{
		EEGChannels: lo.Uniq(eegChannels),
		EOGChannel:  eogChannel,
	}

	if len(reference) == 1 && (reference[0] == RefAverage || reference[0] == RefREST) {
		plan.virtualRef = reference[0]
	} else {
		plan.reference = lo.Uniq(reference)
	}

	required := append([]string{}, plan.EEGChannels...)
	required = append(required, plan.reference...)
	if eogChannel != "" {
		required = append(required, eogChannel)
	}
	for _, ch := range required {
		if !lo.Contains(inventory, ch) {
			return nil, fmt.Errorf("channel %q does not exist in the recording", ch)
		}
	}

	// A reference pair straddling both hemispheres (the usual M1/M2
	// mastoids) switches the plan to contralateral referencing. Pairs
	// without hemisphere information stay as a common reference.
	if len(plan.reference) == 2 {
		a, errA := Hemisphere(plan.reference[0])
		b, errB := Hemisphere(plan.reference[1])
		plan.split = errA == nil && errB == nil && a != b
	}

	return plan, nil
}

// Split reports whether the plan re-references per hemisphere instead of
// applying one common reference to every channel.
func (p *Plan) Split() bool {
	return p.split
}

// Virtual returns the virtual reference scheme, or "" when the plan uses
// real reference channels.
func (p *Plan) Virtual() string {
	return p.virtualRef
}

// ReferenceFor returns the reference channels to re-reference the given
// EEG channel against. For a split mastoid pair this is the contralateral
// mastoid; otherwise it is the whole reference list. Virtual schemes
// return nil, the scheme name travels via Virtual.
func (p *Plan) ReferenceFor(channel string) ([]string, error) {
	if p.virtualRef != "" {
		return nil, nil
	}
	if !p.split {
		return p.reference, nil
	}

	side, err := Hemisphere(channel)
	if err != nil {
		return nil, err
	}
	for _, ref := range p.reference {
		refSide, err := Hemisphere(ref)
		if err != nil {
			return nil, err
		}
		if refSide != side {
			return []string{ref}, nil
		}
	}
	// Unreachable with a validated split pair.
	return p.reference, nil
}
