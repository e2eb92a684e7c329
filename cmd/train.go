package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/gallery"
	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/training"
	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	trainInput    string
	trainOutput   string
	trainImportDB bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Build a recognition artifact from a directory of labeled face images",
	Long: `Reads <input>/<label>/*.{jpg,jpeg,png}, computes one descriptor per image
from its most confident face, and writes face_recognition_<unix-ms>.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runTrain(cmd.Context())
	},
}

func init() {
	trainCmd.Flags().StringVarP(&trainInput, "input", "i", "data/train", "Training directory with one subdirectory per person")
	trainCmd.Flags().StringVarP(&trainOutput, "output", "o", "", "Artifact output directory (default: gallery.dir)")
	trainCmd.Flags().BoolVar(&trainImportDB, "import", false, "Also import the new artifact into the database")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(ctx context.Context) error {
	// 1. Validate input before starting the heavy worker
	total, err := training.CountImages(trainInput)
	if err != nil {
		utils.ShowError(os.Stderr, "Unable to read training directory", err, nil)
		return err
	}
	if total == 0 {
		return fmt.Errorf("no images found under %s", trainInput)
	}
	outDir := trainOutput
	if outDir == "" {
		outDir = cfg.Gallery.Dir
	}

	// 2. Start the engine
	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	eng := engine.NewPython(engineOptions(cfg), logger)
	defer eng.Close()

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🧠 Training"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	trainer := &training.Trainer{
		Engine:        eng,
		MinConfidence: cfg.Detection.MinConfidence,
		Log:           logger,
		OnImage:       func() { _ = bar.Add(1) },
	}

	// 3. Describe every image
	artifact, report, err := trainer.Train(ctx, trainInput, time.Now())
	_ = bar.Finish()
	if err != nil {
		utils.ShowError(os.Stderr, "Training failed", err, nil)
		return err
	}

	// 4. Persist
	path, err := gallery.Write(outDir, artifact)
	if err != nil {
		utils.ShowError(os.Stderr, "Failed to write artifact", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "📊 TRAINING SUMMARY\n")
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "👤 People:       %d\n", artifact.TotalPeople)
	fmt.Fprintf(os.Stderr, "🖼️  Images:       %d\n", report.Images)
	fmt.Fprintf(os.Stderr, "🙂 Descriptors:  %d\n", artifact.TotalDescriptors)
	for _, name := range report.Skipped {
		fmt.Fprintf(os.Stderr, "⚠️  Skipped %s: no face detected in any image\n", name)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	fmt.Printf("✅ Model saved to %s\n", path)

	if trainImportDB {
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		n, err := s.ImportArtifact(ctx, artifact)
		if err != nil {
			logger.Error("import failed", logging.Error(err))
			return err
		}
		fmt.Printf("🗄️  Imported %d descriptors into the database\n", n)
	}
	return nil
}
