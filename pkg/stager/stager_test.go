package stager

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/drowse-dev/drowse/pkg/predcache"
	"github.com/drowse-dev/drowse/pkg/stage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPredictDecodesStages(t *testing.T) {
	var gotBody Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/predict" {
			t.Errorf("path = %q, want /v1/predict", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Response{
			Recording: gotBody.Recording,
			Channel:   gotBody.EEGChannel,
			Epochs:    3,
			Stages:    []string{"W", "N2", "R"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, testLogger(), nil)
	stages, err := client.Predict(context.Background(), Request{
		Recording:  "night1.edf",
		EEGChannel: "C4",
		EOGChannel: "EOG1",
		Reference:  []string{"M1"},
	})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	want := []stage.Stage{stage.Wake, stage.N2, stage.REM}
	if len(stages) != len(want) {
		t.Fatalf("got %d stages, want %d", len(stages), len(want))
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("epoch %d: got %v, want %v", i, stages[i], want[i])
		}
	}

	if gotBody.EpochSec != stage.EpochWidth {
		t.Errorf("epoch_sec defaulted to %v, want %v", gotBody.EpochSec, stage.EpochWidth)
	}
}

func TestPredictSurfacesClientErrorsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `unknown channel "C9"`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := New(srv.URL, testLogger(), nil)
	_, err := client.Predict(context.Background(), Request{Recording: "r", EEGChannel: "C9"})
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if !strings.Contains(err.Error(), "unknown channel") {
		t.Errorf("error should carry the sidecar body, got: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("client error retried %d times, want 1 call", n)
	}
}

func TestPredictRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "classifier warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Response{Stages: []string{"W"}})
	}))
	defer srv.Close()

	client := New(srv.URL, testLogger(), nil)
	stages, err := client.Predict(context.Background(), Request{Recording: "r", EEGChannel: "C4"})
	if err != nil {
		t.Fatalf("Predict failed after retries: %v", err)
	}
	if len(stages) != 1 || stages[0] != stage.Wake {
		t.Errorf("stages = %v, want [W]", stages)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("server error called %d times, want 3", n)
	}
}

func TestPredictServesRepeatCallsFromCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(Response{Stages: []string{"N2", "N2"}})
	}))
	defer srv.Close()

	client := New(srv.URL, testLogger(), predcache.New(time.Hour, testLogger()))
	req := Request{Recording: "night1.edf", EEGChannel: "C4"}

	for range 3 {
		stages, err := client.Predict(context.Background(), req)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if len(stages) != 2 {
			t.Fatalf("got %d stages, want 2", len(stages))
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("sidecar called %d times, want 1 (cache)", n)
	}

	// A different montage must bypass the cached entry.
	req.Reference = []string{"M1"}
	if _, err := client.Predict(context.Background(), req); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("sidecar called %d times after montage change, want 2", n)
	}
}

func TestPredictValidatesRequest(t *testing.T) {
	client := New("http://localhost:0", testLogger(), nil)
	if _, err := client.Predict(context.Background(), Request{EEGChannel: "C4"}); err == nil {
		t.Error("missing recording should fail")
	}
	if _, err := client.Predict(context.Background(), Request{Recording: "r"}); err == nil {
		t.Error("missing eeg channel should fail")
	}
}

func TestChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/channels" {
			t.Errorf("path = %q, want /v1/channels", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"channels":["C3","C4","M1","M2"]}`))
	}))
	defer srv.Close()

	client := New(srv.URL, testLogger(), nil)
	channels, err := client.Channels(context.Background(), "night1.edf")
	if err != nil {
		t.Fatalf("Channels failed: %v", err)
	}
	if len(channels) != 4 || channels[1] != "C4" {
		t.Errorf("channels = %v", channels)
	}
}

func TestChannelsRejectsEmptyInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"channels":[]}`))
	}))
	defer srv.Close()

	client := New(srv.URL, testLogger(), nil)
	if _, err := client.Channels(context.Background(), "night1.edf"); err == nil {
		t.Error("empty inventory should fail")
	}
}

func TestPredictRejectsInconsistentEpochCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{Epochs: 5, Stages: []string{"W", "N1"}})
	}))
	defer srv.Close()

	client := New(srv.URL, testLogger(), nil)
	if _, err := client.Predict(context.Background(), Request{Recording: "r", EEGChannel: "C4"}); err == nil {
		t.Error("epoch/stage mismatch should fail")
	}
}
