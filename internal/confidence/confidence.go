// Package confidence classifies identification match scores into discrete
// levels and maps levels, statuses and models to display palettes.
package confidence

import (
	"fmt"
	"strings"
)

// Level is a discrete confidence bucket.
type Level string

// Confidence levels, highest first.
const (
	High     Level = "high"
	Medium   Level = "medium"
	Low      Level = "low"
	Critical Level = "critical"
)

// Classification thresholds, inclusive lower bounds on the normalized score.
const (
	HighThreshold   = 0.85
	MediumThreshold = 0.65
	LowThreshold    = 0.40
)

// DefaultDecimals is the number of decimal places used by Percent.
const DefaultDecimals = 1

// Normalize returns score as a 0-1 fraction. Any score above 1 is taken to
// be a percentage and divided by 100, so 85 becomes 0.85 but 1.5 becomes
// 0.015.
func Normalize(score float64) float64 {
	if score > 1 {
		return score / 100
	}
	return score
}

// Classify returns the level for score, given either as a fraction or a
// percentage. Scores below the low threshold, negative scores and NaN are
// Critical.
func Classify(score float64) Level {
	s := Normalize(score)
	switch {
	case s >= HighThreshold:
		return High
	case s >= MediumThreshold:
		return Medium
	case s >= LowThreshold:
		return Low
	default:
		return Critical
	}
}

// FormatPercent renders score as a percentage with the given number of
// decimal places: FormatPercent(0.856, 2) == "85.60%".
func FormatPercent(score float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return fmt.Sprintf("%.*f%%", decimals, Normalize(score)*100)
}

// Percent is FormatPercent with DefaultDecimals.
func Percent(score float64) string {
	return FormatPercent(score, DefaultDecimals)
}

// ParseLevel maps a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case High, Medium, Low, Critical:
		return l, true
	}
	return "", false
}

// Label is the human-readable name of the level.
func (l Level) Label() string {
	switch l {
	case High:
		return "High"
	case Medium:
		return "Medium"
	case Low:
		return "Low"
	case Critical:
		return "Critical"
	}
	return "Unknown"
}
