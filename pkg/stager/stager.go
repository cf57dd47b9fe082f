// Package stager is the HTTP client for the external sleep-staging
// sidecar. The sidecar owns the classifier; this client only marshals
// channel roles in and stage codes out.
package stager

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/codeGROOVE-dev/retry"
	"github.com/drowse-dev/drowse/pkg/predcache"
	"github.com/drowse-dev/drowse/pkg/stage"
)

const (
	predictPath  = "/v1/predict"
	channelsPath = "/v1/channels"
)

// Request asks the sidecar to stage one EEG channel of a recording.
// Recording is an opaque reference the sidecar resolves (a file path or
// store key); the client never touches signal data.
type Request struct {
	Recording  string   `json:"recording"`
	EEGChannel string   `json:"eeg_channel"`
	EOGChannel string   `json:"eog_channel,omitempty"`
	Reference  []string `json:"reference,omitempty"`
	RefScheme  string   `json:"ref_scheme,omitempty"`
	EpochSec   float64  `json:"epoch_sec"`
}

// Response carries one stage code per scoring epoch.
type Response struct {
	Recording string   `json:"recording"`
	Channel   string   `json:"channel"`
	Epochs    int      `json:"epochs"`
	Stages    []string `json:"stages"`
}

// Client talks to one staging sidecar instance.
type Client struct {
	logger  *slog.Logger
	httpc   *http.Client
	cache   *predcache.Cache
	baseURL string
}

// New creates a client for the sidecar at baseURL. cache may be nil to
// disable response caching.
func New(baseURL string, logger *slog.Logger, cache *predcache.Cache) *Client {
	return &Client{
		baseURL: baseURL,
		logger:  logger,
		cache:   cache,
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Predict stages one channel and returns the parsed stage sequence.
// Responses are cached on the full request payload, so replanning the
// montage never serves a stale prediction.
func (c *Client) Predict(ctx context.Context, req Request) ([]stage.Stage, error) {
	if req.Recording == "" {
		return nil, fmt.Errorf("recording reference is required")
	}
	if req.EEGChannel == "" {
		return nil, fmt.Errorf("eeg channel is required")
	}
	if req.EpochSec == 0 {
		req.EpochSec = stage.EpochWidth
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling predict request: %w", err)
	}

	url := c.baseURL + predictPath
	if c.cache != nil {
		if cached, ok := c.cache.Get(url, body); ok {
			c.logger.Debug("prediction served from cache",
				"recording", req.Recording, "channel", req.EEGChannel)
			return decode(cached, req.EEGChannel)
		}
	}

	raw, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	stages, err := decode(raw, req.EEGChannel)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(url, body, raw)
	}
	return stages, nil
}

// Channels returns the recording's channel inventory as the sidecar's
// toolkit sees it, used to validate a montage before staging.
func (c *Client) Channels(ctx context.Context, recording string) ([]string, error) {
	if recording == "" {
		return nil, fmt.Errorf("recording reference is required")
	}

	body, err := json.Marshal(map[string]string{"recording": recording})
	if err != nil {
		return nil, fmt.Errorf("marshaling channels request: %w", err)
	}

	url := c.baseURL + channelsPath
	raw, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Channels []string `json:"channels"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding channels response: %w", err)
	}
	if len(resp.Channels) == 0 {
		return nil, fmt.Errorf("sidecar reported no channels for %q", recording)
	}
	return resp.Channels, nil
}

// post sends the request with exponential backoff and jitter. Client
// mistakes (4xx) are surfaced immediately, only transport and server
// errors retry.
func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	var raw []byte

	retryCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	err := retry.Do(
		func() error {
			data, status, err := c.postOnce(retryCtx, url, body)
			if err != nil {
				return err
			}
			if status >= 400 && status < 500 {
				return retry.Unrecoverable(fmt.Errorf("sidecar rejected request: HTTP %d: %s", status, data))
			}
			if status != http.StatusOK {
				return fmt.Errorf("sidecar error: HTTP %d: %s", status, data)
			}
			raw = data
			return nil
		},
		retry.Context(retryCtx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(250*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("retrying staging request", "attempt", n+1, "error", err.Error())
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("staging request failed: %w", err)
	}
	return raw, nil
}

func (c *Client) postOnce(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("posting to sidecar: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("closing response body failed", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("reading sidecar response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func decode(raw []byte, channel string) ([]stage.Stage, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding sidecar response: %w", err)
	}
	if len(resp.Stages) == 0 {
		return nil, fmt.Errorf("sidecar returned no stages for channel %q", channel)
	}
	if resp.Epochs != 0 && resp.Epochs != len(resp.Stages) {
		return nil, fmt.Errorf("sidecar epoch count %d does not match %d stages", resp.Epochs, len(resp.Stages))
	}
	stages, err := stage.ParseSequence(resp.Stages)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", channel, err)
	}
	return stages, nil
}
