package drowse

import (
	"github.com/drowse-dev/drowse/pkg/annotate"
	"github.com/drowse-dev/drowse/pkg/stage"
	"github.com/drowse-dev/drowse/pkg/vote"
)

// Option configures a Checker.
type Option func(*OptionHolder)

// WithServiceURL sets the staging sidecar base URL.
func WithServiceURL(url string) Option {
	return func(o *OptionHolder) {
		o.serviceURL = url
	}
}

// WithEEGChannels sets the EEG channels staged and combined. Defaults to
// C4 alone.
func WithEEGChannels(channels ...string) Option {
	return func(o *OptionHolder) {
		o.eegChannels = channels
	}
}

// WithEOGChannel adds an EOG channel fed to the classifier alongside
// each EEG channel. Only worth setting when the channel quality is good.
func WithEOGChannel(channel string) Option {
	return func(o *OptionHolder) {
		o.eogChannel = channel
	}
}

// WithReference sets the reference channels or a virtual scheme
// ("average" or "REST"). Defaults to the M1/M2 mastoid pair.
func WithReference(reference ...string) Option {
	return func(o *OptionHolder) {
		o.reference = reference
	}
}

// WithKeepN1 keeps N1 epochs as sleep. By default N1 is demoted to Wake
// because the classifier misclassifies it more than any other stage.
func WithKeepN1() Option {
	return func(o *OptionHolder) {
		o.keepN1 = true
	}
}

// WithStageDescriptions spells the stage out in each annotation
// description ("bad: N2" instead of "bad").
func WithStageDescriptions() Option {
	return func(o *OptionHolder) {
		o.specifyStages = true
	}
}

// WithCacheDir enables a disk-backed prediction cache under dir.
func WithCacheDir(dir string) Option {
	return func(o *OptionHolder) {
		o.cacheDir = dir
	}
}

// WithNoCache disables prediction caching entirely.
func WithNoCache() Option {
	return func(o *OptionHolder) {
		o.noCache = true
	}
}

// OptionHolder holds configuration options.
type OptionHolder struct {
	serviceURL    string
	eegChannels   []string
	eogChannel    string
	reference     []string
	cacheDir      string
	keepN1        bool
	specifyStages bool
	noCache       bool
}

// Result is everything one check produces: per-channel raw predictions,
// the combined sequence, and the derived summaries.
type Result struct {
	Recording       string                `json:"recording,omitempty"`
	PerChannel      map[string][]string   `json:"per_channel,omitempty"`
	Combined        []string              `json:"combined"`
	SleepPercentage float64               `json:"sleep_percentage"`
	SleepOnsets     []float64             `json:"sleep_onsets,omitempty"`
	Intervals       []vote.Interval       `json:"intervals"`
	Annotations     []annotate.Annotation `json:"annotations,omitempty"`
	EpochWidth      float64               `json:"epoch_width"`
	combined        []stage.Stage
}

// CombinedStages returns the combined sequence as typed stages.
func (r *Result) CombinedStages() []stage.Stage {
	return r.combined
}
