package training

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/andresmejia3/faceoverlay/internal/utils"
)

// LabelStats holds one person's evaluation counts.
type LabelStats struct {
	Label   string
	Total   int
	Correct int
}

// Accuracy is Correct/Total, or 0 with no samples.
func (s LabelStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// Report is the outcome of an evaluation run. Images with no detected face
// or that failed to process are not part of Total.
type Report struct {
	LabelStats
	NoFace   int
	Failed   int
	PerLabel []LabelStats
}

// Incorrect counts evaluated images that were misclassified or unknown.
func (r Report) Incorrect() int { return r.Total - r.Correct }

// Evaluator classifies held-out images with the same matcher the detector uses.
type Evaluator struct {
	Engine        engine.Engine
	Matcher       *match.Matcher
	MinConfidence float64
	Log           *slog.Logger
	OnImage       func()
}

// Evaluate scores every image under testDir/<label>.
func (e *Evaluator) Evaluate(ctx context.Context, testDir string) (Report, error) {
	report := Report{LabelStats: LabelStats{Label: "overall"}}
	log := logging.NewComponentLogger(e.Log, "evaluate")

	if err := e.Engine.Load(ctx); err != nil {
		return report, fmt.Errorf("load models: %w", err)
	}

	labels, err := utils.ListLabels(testDir)
	if err != nil {
		return report, fmt.Errorf("list people: %w", err)
	}

	for _, label := range labels {
		images, err := utils.ListImages(filepath.Join(testDir, label))
		if err != nil {
			return report, fmt.Errorf("list images for %s: %w", label, err)
		}
		stats := LabelStats{Label: label}
		for _, path := range images {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			ok, correct, err := e.classify(ctx, path, label)
			if e.OnImage != nil {
				e.OnImage()
			}
			switch {
			case err != nil:
				report.Failed++
				log.Warn("image skipped", "path", path, logging.Error(err))
				continue
			case !ok:
				report.NoFace++
				continue
			}
			stats.Total++
			if correct {
				stats.Correct++
			}
		}
		report.Total += stats.Total
		report.Correct += stats.Correct
		report.PerLabel = append(report.PerLabel, stats)
	}
	return report, nil
}

func (e *Evaluator) classify(ctx context.Context, path, label string) (found, correct bool, err error) {
	desc, ok, err := DescribeFile(ctx, e.Engine, path, e.MinConfidence)
	if err != nil || !ok {
		return false, false, err
	}
	res, err := e.Matcher.Match(desc)
	if err != nil {
		return false, false, err
	}
	return true, res.Label == label, nil
}
