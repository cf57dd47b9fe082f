// Package drowse checks whether a subject fell asleep during an EEG
// recording by combining per-channel predictions from an external
// sleep-staging classifier.
package drowse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/drowse-dev/drowse/pkg/annotate"
	"github.com/drowse-dev/drowse/pkg/montage"
	"github.com/drowse-dev/drowse/pkg/predcache"
	"github.com/drowse-dev/drowse/pkg/stage"
	"github.com/drowse-dev/drowse/pkg/stager"
	"github.com/drowse-dev/drowse/pkg/vote"
)

const cacheTTL = 14 * 24 * time.Hour

// Checker runs the full pipeline: montage planning, one sidecar call per
// EEG channel, vote combination, and summary derivation.
type Checker struct {
	logger        *slog.Logger
	stager        *stager.Client
	cache         *predcache.Cache
	eegChannels   []string
	eogChannel    string
	reference     []string
	keepN1        bool
	specifyStages bool
}

// New creates a Checker with a default error-level logger.
func New(opts ...Option) *Checker {
	return NewWithLogger(slog.Default(), opts...)
}

// NewWithLogger creates a Checker with a custom logger.
func NewWithLogger(logger *slog.Logger, opts ...Option) *Checker {
	optHolder := &OptionHolder{
		eegChannels: []string{"C4"},
		reference:   []string{"M1", "M2"},
	}
	for _, opt := range opts {
		opt(optHolder)
	}

	var cache *predcache.Cache
	switch {
	case optHolder.noCache:
		logger.Debug("prediction caching disabled")
	case optHolder.cacheDir != "":
		var err error
		cache, err = predcache.NewWithDir(optHolder.cacheDir, cacheTTL, logger)
		if err != nil {
			logger.Warn("prediction cache initialization failed", "error", err)
			// Cache is optional, continue without it
			cache = nil
		}
	default:
		cache = predcache.New(cacheTTL, logger)
	}

	c := &Checker{
		logger:        logger,
		cache:         cache,
		eegChannels:   lo.Uniq(optHolder.eegChannels),
		eogChannel:    optHolder.eogChannel,
		reference:     optHolder.reference,
		keepN1:        optHolder.keepN1,
		specifyStages: optHolder.specifyStages,
	}
	if optHolder.serviceURL != "" {
		c.stager = stager.New(optHolder.serviceURL, logger, cache)
	}
	return c
}

// Close flushes the prediction cache when it is disk-backed.
func (c *Checker) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// Check stages the configured channels of a recording through the
// sidecar and combines the per-channel predictions. The inventory is the
// recording's full channel list, used to validate the montage before any
// classifier call; pass nil to let the sidecar report it.
func (c *Checker) Check(ctx context.Context, recording string, inventory []string) (*Result, error) {
	if c.stager == nil {
		return nil, fmt.Errorf("no staging service configured; use WithServiceURL or CheckPredictions")
	}

	if inventory == nil {
		var err error
		inventory, err = c.stager.Channels(ctx, recording)
		if err != nil {
			return nil, fmt.Errorf("fetching channel inventory: %w", err)
		}
	}

	plan, err := montage.New(inventory, c.eegChannels, c.eogChannel, c.reference)
	if err != nil {
		return nil, fmt.Errorf("planning montage: %w", err)
	}
	c.logger.Debug("montage planned",
		"eeg_channels", plan.EEGChannels,
		"eog_channel", plan.EOGChannel,
		"split_reference", plan.Split())

	predictions := make(map[string][]stage.Stage, len(plan.EEGChannels))
	for _, channel := range plan.EEGChannels {
		reference, err := plan.ReferenceFor(channel)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", channel, err)
		}

		stages, err := c.stager.Predict(ctx, stager.Request{
			Recording:  recording,
			EEGChannel: channel,
			EOGChannel: plan.EOGChannel,
			Reference:  reference,
			RefScheme:  plan.Virtual(),
			EpochSec:   stage.EpochWidth,
		})
		if err != nil {
			return nil, fmt.Errorf("staging channel %q: %w", channel, err)
		}
		c.logger.Debug("channel staged", "channel", channel, "epochs", len(stages))
		predictions[channel] = stages
	}

	result, err := c.CheckPredictions(predictions)
	if err != nil {
		return nil, err
	}
	result.Recording = recording
	return result, nil
}

// CheckPredictions combines already-obtained per-channel predictions
// without touching the staging service. This is the pure path used when
// predictions arrive from a file or another process.
func (c *Checker) CheckPredictions(predictions map[string][]stage.Stage) (*Result, error) {
	combined, err := vote.Combine(predictions)
	if err != nil {
		return nil, err
	}
	if !c.keepN1 {
		combined = vote.DemoteN1(combined)
	}

	percentage, err := vote.SleepPercentage(combined)
	if err != nil {
		return nil, err
	}
	intervals, err := vote.Intervals(combined, stage.EpochWidth)
	if err != nil {
		return nil, err
	}
	onsets, err := annotate.SleepOnsets(combined, stage.EpochWidth)
	if err != nil {
		return nil, err
	}
	annotations, err := annotate.FromSequence(combined, stage.EpochWidth, c.specifyStages)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("predictions combined",
		"channels", len(predictions),
		"epochs", len(combined),
		"sleep_percentage", percentage)

	return &Result{
		PerChannel: lo.MapValues(predictions, func(seq []stage.Stage, _ string) []string {
			return stage.Codes(seq)
		}),
		Combined:        stage.Codes(combined),
		SleepPercentage: percentage,
		SleepOnsets:     onsets,
		Intervals:       intervals,
		Annotations:     annotations,
		EpochWidth:      stage.EpochWidth,
		combined:        combined,
	}, nil
}
