package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/geririsk/platform/pkg/common/config"
	"github.com/geririsk/platform/pkg/common/logger"
	"github.com/geririsk/platform/pkg/ml/linear"
	"github.com/geririsk/platform/pkg/risk"
)

func main() {
	var (
		examplesPath = flag.String("examples", "", "JSON-lines file of {aggregates, labels} training examples")
		outDir       = flag.String("out", "", "Artifact directory (default RISK_ARTIFACT_DIR)")
		epochs       = flag.Int("epochs", 500, "Gradient descent epochs")
		rate         = flag.Float64("lr", 0.1, "Learning rate")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --examples train.jsonl [--out ml/models] [--epochs 500] [--lr 0.1]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*examplesPath) == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger.InitWithOutput("train-models", os.Stderr)
	cfg := config.Load()
	dir := *outDir
	if dir == "" {
		dir = cfg.RiskArtifactDir
	}

	examples, err := readExamples(*examplesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "train-models failed: %v\n", err)
		os.Exit(1)
	}

	opts := linear.Options{Epochs: *epochs, LearningRate: *rate}
	for _, model := range risk.Models() {
		artifact, report, err := risk.TrainArtifact(model, examples, opts)
		if err != nil {
			logger.Log.WithError(err).WithField("model", model).Warn("model not trained")
			continue
		}
		report.Path, err = risk.WriteArtifact(dir, model, artifact)
		if err != nil {
			fmt.Fprintf(os.Stderr, "train-models failed: %v\n", err)
			os.Exit(1)
		}
		logger.Log.WithFields(map[string]interface{}{
			"model":    report.Model,
			"samples":  report.Samples,
			"skipped":  report.Skipped,
			"loss":     report.Loss,
			"accuracy": report.Accuracy,
			"path":     report.Path,
		}).Info("model trained")
	}
}

func readExamples(path string) ([]risk.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []risk.Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var ex risk.Example
		if err := json.Unmarshal([]byte(text), &ex); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, ex)
	}
	return out, scanner.Err()
}
