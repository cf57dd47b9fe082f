// Package main implements the drowse CLI for checking whether a subject
// fell asleep during an EEG recording.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/drowse-dev/drowse/pkg/drowse"
	"github.com/drowse-dev/drowse/pkg/hypnogram"
	"github.com/drowse-dev/drowse/pkg/stage"
)

var (
	serviceURL    = flag.String("service-url", "", "Staging sidecar base URL (or set DROWSE_SERVICE_URL)")
	predictions   = flag.String("predictions", "", "JSON file of per-channel stage codes instead of calling the sidecar")
	eegChannels   = flag.String("eeg", "C4", "Comma-separated EEG channels to stage")
	eogChannel    = flag.String("eog", "", "EOG channel to feed the classifier (only if its quality is good)")
	reference     = flag.String("ref", "M1,M2", "Reference channels, or 'average' or 'REST'")
	keepN1        = flag.Bool("keep-n1", false, "Count N1 epochs as sleep")
	specifyStages = flag.Bool("specify-stages", false, "Spell the stage out in annotation descriptions")
	cacheDir      = flag.String("cache-dir", "", "Prediction cache directory (or set DROWSE_CACHE_DIR)")
	noCache       = flag.Bool("no-cache", false, "Disable prediction caching")
	jsonOutput    = flag.Bool("json", false, "Emit the full result as JSON instead of a hypnogram")
	verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	version       = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("drowse CLI v1.2.0")
		return
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *serviceURL == "" {
		*serviceURL = os.Getenv("DROWSE_SERVICE_URL")
	}
	if *cacheDir == "" {
		*cacheDir = os.Getenv("DROWSE_CACHE_DIR")
	}

	args := flag.Args()
	if *predictions == "" && len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <recording>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s [flags] -predictions stages.json\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	checkerOpts := []drowse.Option{
		drowse.WithServiceURL(*serviceURL),
		drowse.WithEEGChannels(splitChannels(*eegChannels)...),
		drowse.WithReference(splitChannels(*reference)...),
	}
	if *eogChannel != "" {
		checkerOpts = append(checkerOpts, drowse.WithEOGChannel(*eogChannel))
	}
	if *keepN1 {
		checkerOpts = append(checkerOpts, drowse.WithKeepN1())
	}
	if *specifyStages {
		checkerOpts = append(checkerOpts, drowse.WithStageDescriptions())
	}
	switch {
	case *noCache:
		checkerOpts = append(checkerOpts, drowse.WithNoCache())
	case *cacheDir != "":
		checkerOpts = append(checkerOpts, drowse.WithCacheDir(*cacheDir))
	}

	checker := drowse.NewWithLogger(logger, checkerOpts...)
	defer func() {
		if err := checker.Close(); err != nil {
			logger.Warn("closing checker", "error", err)
		}
	}()

	var result *drowse.Result
	var err error
	if *predictions != "" {
		result, err = checkFromFile(checker, *predictions)
	} else {
		if *serviceURL == "" {
			fmt.Fprintln(os.Stderr, "Error: -service-url (or DROWSE_SERVICE_URL) is required to stage a recording")
			os.Exit(1)
		}
		result, err = checker.Check(context.Background(), args[0], nil)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: encoding result: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Print(hypnogram.Render(result.CombinedStages(), result.EpochWidth))
	fmt.Print(hypnogram.Legend())
}

// checkFromFile combines predictions stored as {"C4": ["W","N2",...]}.
func checkFromFile(checker *drowse.Checker, path string) (*drowse.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading predictions file: %w", err)
	}

	var wire map[string][]string
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parsing predictions file: %w", err)
	}

	parsed := make(map[string][]stage.Stage, len(wire))
	for channel, codes := range wire {
		seq, err := stage.ParseSequence(codes)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", channel, err)
		}
		parsed[channel] = seq
	}
	return checker.CheckPredictions(parsed)
}

func splitChannels(list string) []string {
	var channels []string
	for _, ch := range strings.Split(list, ",") {
		if trimmed := strings.TrimSpace(ch); trimmed != "" {
			channels = append(channels, trimmed)
		}
	}
	return channels
}
