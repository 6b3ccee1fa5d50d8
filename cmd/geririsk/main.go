package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/geririsk/platform/pkg/common/config"
	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/common/models"
	"github.com/geririsk/platform/pkg/features"
	"github.com/geririsk/platform/pkg/pipeline"
	"github.com/geririsk/platform/pkg/risk"
)

type output struct {
	models.ProcessResponse
	Explanation *risk.Explanation                  `json:"explanation,omitempty"`
	Stats       map[string]*features.ColumnSummary `json:"stats,omitempty"`
}

func main() {
	var (
		csvPath   = flag.String("csv", "", "Path to a wearable CSV export")
		rulesPath = flag.String("rules", "", "YAML risk rules file (overrides RISK_RULES_PATH)")
		scorer    = flag.String("scorer", "", "Risk scorer: rules|logistic|remote (overrides RISK_SCORER)")
		explain   = flag.Bool("explain", false, "Include the rule factors behind each score")
		stats     = flag.Bool("stats", false, "Include per-column min/max/mean")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --csv vitals.csv [--rules rules.yaml] [--scorer rules|logistic|remote] [--explain] [--stats]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*csvPath) == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger.InitWithOutput("geririsk", os.Stderr)
	cfg := config.Load()
	if *rulesPath != "" {
		cfg.RiskRulesPath = *rulesPath
	}
	if *scorer != "" {
		cfg.RiskScorer = strings.ToLower(*scorer)
	}

	if err := run(cfg, *csvPath, *explain, *stats); err != nil {
		fmt.Fprintf(os.Stderr, "geririsk failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, path string, explain, stats bool) error {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return fmt.Errorf("%s: only .csv files are accepted", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	pipe, err := pipeline.FromConfig(cfg)
	if err != nil {
		return err
	}
	res, err := pipe.Run(context.Background(), raw)
	if err != nil {
		return err
	}

	out := output{ProcessResponse: res.Response("", filepath.Base(path))}
	if explain {
		rules, err := risk.LoadConfig(cfg.RiskRulesPath)
		if err != nil {
			return err
		}
		exp := risk.NewRuleScorer(rules).Explain(res.Aggregates)
		out.Explanation = &exp
	}
	if stats {
		cols := features.DefaultConfig().Columns
		out.Stats = map[string]*features.ColumnSummary{}
		for _, col := range []string{cols.HeartRate, cols.SpO2, cols.Steps} {
			out.Stats[col] = features.ColumnStats(res.Records, col)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
