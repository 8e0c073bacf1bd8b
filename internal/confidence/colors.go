package confidence

import "strings"

// Palette is a presentation color set (hex RGB).
type Palette struct {
	Foreground string
	Background string
	Border     string
}

// Neutral is returned for any level, status or model without a mapping.
var Neutral = Palette{Foreground: "#374151", Background: "#F3F4F6", Border: "#D1D5DB"}

var levelPalettes = map[Level]Palette{
	High:     {Foreground: "#166534", Background: "#DCFCE7", Border: "#86EFAC"},
	Medium:   {Foreground: "#854D0E", Background: "#FEF9C3", Border: "#FDE047"},
	Low:      {Foreground: "#9A3412", Background: "#FFEDD5", Border: "#FDBA74"},
	Critical: {Foreground: "#991B1B", Background: "#FEE2E2", Border: "#FCA5A5"},
}

var statusPalettes = map[string]Palette{
	"active":      {Foreground: "#1E40AF", Background: "#DBEAFE", Border: "#93C5FD"},
	"in_progress": {Foreground: "#1E40AF", Background: "#DBEAFE", Border: "#93C5FD"},
	"pending":     {Foreground: "#854D0E", Background: "#FEF9C3", Border: "#FDE047"},
	"completed":   {Foreground: "#166534", Background: "#DCFCE7", Border: "#86EFAC"},
	"approved":    {Foreground: "#166534", Background: "#DCFCE7", Border: "#86EFAC"},
	"verified":    {Foreground: "#166534", Background: "#DCFCE7", Border: "#86EFAC"},
	"rejected":    {Foreground: "#991B1B", Background: "#FEE2E2", Border: "#FCA5A5"},
	"failed":      {Foreground: "#991B1B", Background: "#FEE2E2", Border: "#FCA5A5"},
	"archived":    Neutral,
}

var modelPalettes = map[string]Palette{
	"wildlife_tools": {Foreground: "#5B21B6", Background: "#EDE9FE", Border: "#C4B5FD"},
	"cvwc2019":       {Foreground: "#155E75", Background: "#CFFAFE", Border: "#67E8F9"},
	"transreid":      {Foreground: "#9D174D", Background: "#FCE7F3", Border: "#F9A8D4"},
	"megadescriptor": {Foreground: "#3730A3", Background: "#E0E7FF", Border: "#A5B4FC"},
	"tigerid":        {Foreground: "#92400E", Background: "#FEF3C7", Border: "#FCD34D"},
	"rapid":          {Foreground: "#065F46", Background: "#D1FAE5", Border: "#6EE7B7"},
}

// Colors returns the palette for a level.
func Colors(l Level) Palette {
	if p, ok := levelPalettes[l]; ok {
		return p
	}
	return Neutral
}

// ScoreColors classifies score and returns the level palette.
func ScoreColors(score float64) Palette {
	return Colors(Classify(score))
}

// StatusColors returns the palette for an investigation or verification
// status.
func StatusColors(status string) Palette {
	if p, ok := statusPalettes[normalizeKey(status)]; ok {
		return p
	}
	return Neutral
}

// ModelColors returns the palette for an identification model name.
func ModelColors(model string) Palette {
	if p, ok := modelPalettes[normalizeKey(model)]; ok {
		return p
	}
	return Neutral
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}
