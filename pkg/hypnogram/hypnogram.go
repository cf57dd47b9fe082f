// Package hypnogram renders a combined stage sequence as a compact
// terminal timeline.
package hypnogram

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/drowse-dev/drowse/pkg/stage"
	"github.com/drowse-dev/drowse/pkg/vote"
)

// epochsPerRow keeps each row at 30 minutes of recording for the
// standard 30-second epoch.
const epochsPerRow = 60

type glyph struct {
	char  string
	color *color.Color
}

var glyphs = map[stage.Stage]glyph{
	stage.Wake: {"W", color.New(color.FgGreen)},
	stage.N1:   {"1", color.New(color.FgCyan)},
	stage.N2:   {"2", color.New(color.FgBlue)},
	stage.N3:   {"3", color.New(color.FgMagenta)},
	stage.REM:  {"R", color.New(color.FgYellow)},
}

// Render draws the sequence as rows of per-epoch glyphs with elapsed
// time labels, followed by a summary footer.
func Render(combined []stage.Stage, epochWidth float64) string {
	var output strings.Builder

	output.WriteString("💤 Sleep Stages (one glyph per epoch)\n")
	output.WriteString(strings.Repeat("─", 50) + "\n")

	if len(combined) == 0 {
		return output.String() + "No staged epochs available\n"
	}

	for rowStart := 0; rowStart < len(combined); rowStart += epochsPerRow {
		output.WriteString(timestamp(float64(rowStart)*epochWidth) + " ")
		rowEnd := min(rowStart+epochsPerRow, len(combined))
		for _, s := range combined[rowStart:rowEnd] {
			g, ok := glyphs[s]
			if !ok {
				output.WriteString("?")
				continue
			}
			output.WriteString(g.color.Sprint(g.char))
		}
		output.WriteString("\n")
	}

	output.WriteString(strings.Repeat("─", 50) + "\n")
	output.WriteString(footer(combined, epochWidth))
	return output.String()
}

// Legend explains the glyphs, colored the same way as the timeline.
func Legend() string {
	var parts []string
	for _, s := range []stage.Stage{stage.Wake, stage.N1, stage.N2, stage.N3, stage.REM} {
		g := glyphs[s]
		name := map[stage.Stage]string{
			stage.Wake: "wake",
			stage.N1:   "N1",
			stage.N2:   "N2",
			stage.N3:   "N3",
			stage.REM:  "REM",
		}[s]
		parts = append(parts, fmt.Sprintf("%s=%s", g.color.Sprint(g.char), name))
	}
	return "Legend: " + strings.Join(parts, "  ") + "\n"
}

func footer(combined []stage.Stage, epochWidth float64) string {
	var output strings.Builder

	pct, err := vote.SleepPercentage(combined)
	if err != nil {
		return ""
	}
	output.WriteString(fmt.Sprintf("Asleep: %.1f%% of %s\n", pct,
		timestamp(float64(len(combined))*epochWidth)))

	intervals, err := vote.Intervals(combined, epochWidth)
	if err != nil {
		return output.String()
	}
	for _, iv := range intervals {
		if !iv.Stage.Asleep() {
			continue
		}
		output.WriteString(fmt.Sprintf("  %s–%s %s\n",
			timestamp(iv.Start), timestamp(iv.End()), iv.Stage))
	}
	return output.String()
}

// timestamp formats elapsed seconds as h:mm:ss.
func timestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
}
