// Package vote combines per-channel sleep-stage predictions into a single
// per-epoch sequence for a recording.
package vote

import (
	"errors"
	"fmt"
	"sort"

	"github.com/drowse-dev/drowse/pkg/stage"
)

// ErrInvalidInput reports a caller mistake: empty prediction sets,
// mismatched sequence lengths, non-positive epoch widths, unknown stages.
// These are deterministic computations, so the error is never retried.
var ErrInvalidInput = errors.New("invalid input")

// Interval is a run of consecutive epochs sharing one stage. Start and
// Duration are in seconds. A full interval list covers the recording
// with no gaps or overlaps.
type Interval struct {
	Start    float64     `json:"start"`
	Duration float64     `json:"duration"`
	Stage    stage.Stage `json:"stage"`
}

// End returns the exclusive end of the interval in seconds.
func (iv Interval) End() float64 {
	return iv.Start + iv.Duration
}

// Combine merges per-channel predictions into one stage per epoch by
// plurality vote. Ties resolve to the most wake-like tied stage
// (Wake > N1 > REM > N2 > N3), so a split vote never over-calls sleep.
// All sequences must share the same positive length.
func Combine(predictions map[string][]stage.Stage) ([]stage.Stage, error) {
	if len(predictions) == 0 {
		return nil, fmt.Errorf("%w: no channel predictions", ErrInvalidInput)
	}

	channels := make([]string, 0, len(predictions))
	for ch := range predictions {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	length := len(predictions[channels[0]])
	if length == 0 {
		return nil, fmt.Errorf("%w: channel %q has an empty sequence", ErrInvalidInput, channels[0])
	}
	for _, ch := range channels {
		seq := predictions[ch]
		if len(seq) != length {
			return nil, fmt.Errorf("%w: channel %q has %d epochs, channel %q has %d",
				ErrInvalidInput, channels[0], length, ch, len(seq))
		}
		for i, s := range seq {
			if !s.Valid() {
				return nil, fmt.Errorf("%w: channel %q epoch %d: unrecognized stage %d",
					ErrInvalidInput, ch, i, int(s))
			}
		}
	}

	combined := make([]stage.Stage, length)
	for i := range length {
		var tally [5]int
		for _, ch := range channels {
			tally[predictions[ch][i]]++
		}

		winner := stage.Wake
		best := -1
		for _, s := range []stage.Stage{stage.Wake, stage.N1, stage.N2, stage.N3, stage.REM} {
			count := tally[s]
			if count > best || (count == best && s.Priority() < winner.Priority()) {
				winner = s
				best = count
			}
		}
		combined[i] = winner
	}
	return combined, nil
}

// SleepPercentage returns the share of epochs scored as anything other
// than Wake, in percent.
func SleepPercentage(combined []stage.Stage) (float64, error) {
	if len(combined) == 0 {
		return 0, fmt.Errorf("%w: empty sequence", ErrInvalidInput)
	}
	asleep := 0
	for i, s := range combined {
		if !s.Valid() {
			return 0, fmt.Errorf("%w: epoch %d: unrecognized stage %d", ErrInvalidInput, i, int(s))
		}
		if s.Asleep() {
			asleep++
		}
	}
	return float64(asleep) / float64(len(combined)) * 100, nil
}

// Intervals run-length-encodes a combined sequence into stage intervals.
// The result covers exactly [0, len*epochWidth) seconds with no gaps.
func Intervals(combined []stage.Stage, epochWidth float64) ([]Interval, error) {
	if len(combined) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrInvalidInput)
	}
	if epochWidth <= 0 {
		return nil, fmt.Errorf("%w: epoch width %v must be positive", ErrInvalidInput, epochWidth)
	}
	for i, s := range combined {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: epoch %d: unrecognized stage %d", ErrInvalidInput, i, int(s))
		}
	}

	var intervals []Interval
	current := Interval{Start: 0, Duration: epochWidth, Stage: combined[0]}
	for _, s := range combined[1:] {
		if s == current.Stage {
			current.Duration += epochWidth
			continue
		}
		intervals = append(intervals, current)
		current = Interval{Start: current.End(), Duration: epochWidth, Stage: s}
	}
	return append(intervals, current), nil
}

// DemoteN1 returns a copy of the sequence with every N1 epoch replaced
// by Wake. N1 is the stage the classifier confuses most often, so by
// default drowse does not count it as sleep; keepN1 callers skip this.
func DemoteN1(combined []stage.Stage) []stage.Stage {
	out := make([]stage.Stage, len(combined))
	for i, s := range combined {
		if s == stage.N1 {
			out[i] = stage.Wake
		} else {
			out[i] = s
		}
	}
	return out
}
