package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/tripsift-dev/tripsift/pkg/tripsift"
)

func printJSON(result *tripsift.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
}

func printResult(result *tripsift.Result) {
	fmt.Printf("\n🧳 Trip Suggestions\n")
	fmt.Println(strings.Repeat("─", 50))

	if len(result.Suggestions) == 0 {
		fmt.Println("No trips found in the scanned evidence.")
		printSummary(result)
		return
	}

	for i := range result.Suggestions {
		printCandidate(&result.Suggestions[i], i+1)
	}
	printSummary(result)
}

func printCandidate(c *tripsift.Candidate, rank int) {
	fmt.Printf("\n%d. %s (%s)\n", rank, c.CountryName, c.CountryCode)

	if c.Dated() {
		const layout = "2006-01-02"
		if c.Start.Equal(c.End) {
			fmt.Printf("   📅 %s\n", c.Start.Format(layout))
		} else {
			nights := int(c.End.Sub(c.Start).Hours() / 24)
			fmt.Printf("   📅 %s → %s (%d nights)\n", c.Start.Format(layout), c.End.Format(layout), nights)
		}
	} else {
		fmt.Printf("   📅 dates unknown\n")
	}

	fmt.Printf("   🔎 %s — %s confidence\n", c.SourceLabel, confidenceLabel(c.Confidence))

	if len(c.RelatedCountries) > 0 {
		fmt.Printf("   🔗 possibly part of a trip with %s\n", strings.Join(c.RelatedCountries, ", "))
	}
}

// confidenceLabel renders a score as a colored percentage band.
func confidenceLabel(score float64) string {
	pct := fmt.Sprintf("%.0f%%", score*100)
	switch {
	case score >= 0.75:
		return color.New(color.FgGreen).Sprint(pct)
	case score >= 0.45:
		return color.New(color.FgYellow).Sprint(pct)
	default:
		return color.New(color.FgHiBlack).Sprint(pct)
	}
}

func printSummary(result *tripsift.Result) {
	fmt.Println()
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("📊 Scanned %d photos and %d emails, suggested %d trips\n",
		result.Summary.PhotosScanned,
		result.Summary.EmailsScanned,
		result.Summary.TripsSuggested)
}
