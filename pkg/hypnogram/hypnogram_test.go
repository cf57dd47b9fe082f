package hypnogram

import (
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/drowse-dev/drowse/pkg/stage"
)

func init() {
	// Plain output so substring assertions see the raw glyphs.
	color.NoColor = true
}

func TestRenderShowsEveryEpoch(t *testing.T) {
	combined := []stage.Stage{stage.Wake, stage.N1, stage.N2, stage.N3, stage.REM}
	out := Render(combined, stage.EpochWidth)

	if !strings.Contains(out, "W123R") {
		t.Errorf("timeline missing expected glyph run:\n%s", out)
	}
	if !strings.Contains(out, "0:00:00") {
		t.Errorf("timeline missing row timestamp:\n%s", out)
	}
	if !strings.Contains(out, "Asleep: 80.0%") {
		t.Errorf("footer missing percentage:\n%s", out)
	}
}

func TestRenderWrapsLongRecordings(t *testing.T) {
	// 90 epochs = 45 minutes, so the second row starts at 0:30:00.
	combined := make([]stage.Stage, 90)
	for i := range combined {
		combined[i] = stage.N2
	}
	out := Render(combined, stage.EpochWidth)

	if !strings.Contains(out, "0:30:00") {
		t.Errorf("expected a second row at 0:30:00:\n%s", out)
	}
	if strings.Count(out, strings.Repeat("2", 60)) != 1 {
		t.Errorf("first row should hold exactly 60 epochs:\n%s", out)
	}
}

func TestRenderListsSleepIntervals(t *testing.T) {
	combined := []stage.Stage{stage.Wake, stage.N2, stage.N2, stage.Wake}
	out := Render(combined, 30)

	if !strings.Contains(out, "0:00:30–0:01:30 N2") {
		t.Errorf("footer missing N2 interval:\n%s", out)
	}
	if strings.Contains(out, "W\n  0:00:00") {
		t.Errorf("footer should not list wake intervals:\n%s", out)
	}
}

func TestRenderEmptySequence(t *testing.T) {
	out := Render(nil, stage.EpochWidth)
	if !strings.Contains(out, "No staged epochs") {
		t.Errorf("empty render = %q", out)
	}
}

func TestLegendCoversAllStages(t *testing.T) {
	legend := Legend()
	for _, want := range []string{"W=wake", "1=N1", "2=N2", "3=N3", "R=REM"} {
		if !strings.Contains(legend, want) {
			t.Errorf("legend missing %q: %s", want, legend)
		}
	}
}
