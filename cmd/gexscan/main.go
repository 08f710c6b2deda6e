// gexscan computes a gamma-exposure profile from a single chain snapshot
// file and prints it as JSON.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/jfenner/gexengine/internal/gamma"
	"github.com/jfenner/gexengine/internal/models"
)

func main() {
	var (
		file       string
		minStrikes int
	)
	flag.StringVar(&file, "file", "", "Path to a snapshot JSON file (required)")
	flag.IntVar(&minStrikes, "min-strikes", gamma.DefaultMinValidStrikes, "Minimum strikes with open interest")
	flag.Parse()

	if file == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "[GEXSCAN] ", log.LstdFlags)

	data, err := os.ReadFile(file) // #nosec G304 -- file is a user-provided snapshot path
	if err != nil {
		logger.Fatalf("Failed to read snapshot: %v", err)
	}

	var snap models.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Fatalf("Failed to parse snapshot: %v", err)
	}

	calc := gamma.NewCalculator()
	calc.MinValidStrikes = minStrikes

	profile, err := calc.Compute(&snap)
	if err != nil {
		logger.Fatalf("Failed to compute profile: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(profile); err != nil {
		logger.Fatalf("Failed to encode profile: %v", err)
	}

	logger.Printf("%s %s: net %.2fB USD, regime %s, call wall %.0f, put wall %.0f",
		snap.Symbol, snap.Date.Format("2006-01-02"),
		profile.NormalizedExposure, profile.Regime, profile.CallWall, profile.PutWall)
}
