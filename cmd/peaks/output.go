package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
)

type result struct {
	URL      string           `json:"url"`
	Analyzed bool             `json:"analyzed"`
	Peaks    domain.PeakArray `json:"peaks,omitempty"`
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, bars",
		Value:   "json",
	}
}

var blocks = []rune("▁▂▃▄▅▆▇█")

// renderBars draws an envelope as one line of block characters.
func renderBars(peaks domain.PeakArray) string {
	var b strings.Builder
	for _, v := range peaks {
		i := int(v * float64(len(blocks)-1))
		if i < 0 {
			i = 0
		}
		if i >= len(blocks) {
			i = len(blocks) - 1
		}
		b.WriteRune(blocks[i])
	}
	return b.String()
}

func printPeaks(w io.Writer, format string, results []result) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case "bars":
		for _, r := range results {
			line := "(not analyzed)"
			if r.Analyzed {
				line = renderBars(r.Peaks)
			}
			if _, err := fmt.Fprintf(w, "%s\n  %s\n", r.URL, line); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
