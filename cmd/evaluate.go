package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/gallery"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/andresmejia3/faceoverlay/internal/training"
	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	evalInput     string
	evalGallery   string
	evalThreshold float64
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure recognition accuracy on held-out images",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEvaluate(cmd.Context())
	},
}

func init() {
	evaluateCmd.Flags().StringVarP(&evalInput, "input", "i", "data/test", "Test directory with one subdirectory per person")
	evaluateCmd.Flags().StringVarP(&evalGallery, "gallery", "g", "", "Artifact to evaluate (default: newest in gallery.dir)")
	evaluateCmd.Flags().Float64VarP(&evalThreshold, "threshold", "t", 0, "Match threshold (default: detection.match_threshold)")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(ctx context.Context) error {
	// 1. Load the artifact under test
	path, err := gallerySource(cfg, evalGallery).Resolve()
	if err != nil {
		utils.ShowError(os.Stderr, "No recognition artifact found", err, nil)
		return err
	}
	artifact, err := gallery.Read(path)
	if err != nil {
		utils.ShowError(os.Stderr, "Failed to read artifact", err, nil)
		return err
	}
	threshold := evalThreshold
	if threshold <= 0 {
		threshold = cfg.Detection.MatchThreshold
	}
	matcher, err := match.New(artifact.Gallery(), threshold)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "📦 Using %s (%d people, %d descriptors)\n", path, artifact.TotalPeople, artifact.TotalDescriptors)

	total, err := training.CountImages(evalInput)
	if err != nil {
		utils.ShowError(os.Stderr, "Unable to read test directory", err, nil)
		return err
	}

	// 2. Classify every held-out image
	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	eng := engine.NewPython(engineOptions(cfg), logger)
	defer eng.Close()

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🔍 Evaluating"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	evaluator := &training.Evaluator{
		Engine:        eng,
		Matcher:       matcher,
		MinConfidence: cfg.Detection.MinConfidence,
		Log:           logger,
		OnImage:       func() { _ = bar.Add(1) },
	}
	report, err := evaluator.Evaluate(ctx, evalInput)
	_ = bar.Finish()
	if err != nil {
		utils.ShowError(os.Stderr, "Evaluation failed", err, nil)
		return err
	}

	// 3. Report
	fmt.Fprintln(os.Stderr)
	fmt.Println(renderTable([]string{"Person", "Correct", "Total", "Accuracy"}, evaluationRows(report),
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
	if report.NoFace > 0 || report.Failed > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  %d images without a face, %d failed\n", report.NoFace, report.Failed)
	}
	return nil
}

// evaluationRows lists every person followed by the overall line.
func evaluationRows(r training.Report) [][]string {
	rows := make([][]string, 0, len(r.PerLabel)+1)
	for _, s := range r.PerLabel {
		rows = append(rows, statsRow(s))
	}
	return append(rows, statsRow(r.LabelStats))
}

func statsRow(s training.LabelStats) []string {
	return []string{
		s.Label,
		fmt.Sprintf("%d", s.Correct),
		fmt.Sprintf("%d", s.Total),
		fmt.Sprintf("%.2f%%", s.Accuracy()*100),
	}
}
