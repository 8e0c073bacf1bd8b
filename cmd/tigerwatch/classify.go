package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sweeney/tigerwatch/internal/confidence"
	"github.com/sweeney/tigerwatch/internal/tui"
)

var classifyDecimals int

var classifyCmd = &cobra.Command{
	Use:   "classify <score>...",
	Short: "Show the confidence level of identification scores",
	Long: `Scores may be fractions (0.91) or percentages (91).

  tigerwatch classify 0.91 72 0.3`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scores, err := parseScores(args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, s := range scores {
			level := confidence.Classify(s)
			badge := tui.PaletteStyle(confidence.Colors(level)).Render(level.Label())
			fmt.Fprintf(out, "%-8s %7s  %s\n", args[i], confidence.FormatPercent(s, classifyDecimals), badge)
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().IntVar(&classifyDecimals, "decimals", 1, "Decimal places in the percentage")
}

func parseScores(args []string) ([]float64, error) {
	scores := make([]float64, 0, len(args))
	for _, a := range args {
		s, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid score %q", a)
		}
		scores = append(scores, s)
	}
	return scores, nil
}
