// Package annotate turns combined stage sequences into labeled time
// intervals shaped for an EEG toolkit's annotation interface.
package annotate

import (
	"fmt"
	"sort"

	"github.com/drowse-dev/drowse/pkg/stage"
	"github.com/drowse-dev/drowse/pkg/vote"
)

// BadLabel marks sleep segments so downstream analysis drops them, the
// convention EEG toolkits use for rejected spans.
const BadLabel = "bad"

// Annotation is one labeled span of a recording. Onset and Duration are
// in seconds from recording start, matching the common
// onset/duration/description annotation schema.
type Annotation struct {
	Onset       float64 `json:"onset"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
}

// FromSequence builds annotations for every non-Wake run in a combined
// sequence. Descriptions are "bad", or "bad: <stage>" when specifyStage
// is set. Consecutive epochs sharing a stage merge into one annotation.
func FromSequence(combined []stage.Stage, epochWidth float64, specifyStage bool) ([]Annotation, error) {
	intervals, err := vote.Intervals(combined, epochWidth)
	if err != nil {
		return nil, err
	}

	var annotations []Annotation
	for _, iv := range intervals {
		if !iv.Stage.Asleep() {
			continue
		}
		description := BadLabel
		if specifyStage {
			description = fmt.Sprintf("%s: %s", BadLabel, iv.Stage)
		}
		annotations = append(annotations, Annotation{
			Onset:       iv.Start,
			Duration:    iv.Duration,
			Description: description,
		})
	}
	return annotations, nil
}

// SleepOnsets returns the start time in seconds of every epoch scored as
// asleep. The first entry is the moment the subject first dozed off.
func SleepOnsets(combined []stage.Stage, epochWidth float64) ([]float64, error) {
	if epochWidth <= 0 {
		return nil, fmt.Errorf("%w: epoch width %v must be positive", vote.ErrInvalidInput, epochWidth)
	}
	var onsets []float64
	for i, s := range combined {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: epoch %d: unrecognized stage %d", vote.ErrInvalidInput, i, int(s))
		}
		if s.Asleep() {
			onsets = append(onsets, float64(i)*epochWidth)
		}
	}
	return onsets, nil
}

// Merge combines pre-existing annotations with new ones, sorted by
// onset. Existing annotations are never dropped or rewritten, matching
// the append semantics of toolkit annotation stores.
func Merge(existing, added []Annotation) []Annotation {
	merged := make([]Annotation, 0, len(existing)+len(added))
	merged = append(merged, existing...)
	merged = append(merged, added...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Onset < merged[j].Onset
	})
	return merged
}
