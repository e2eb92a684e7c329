package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/andresmejia3/faceoverlay/internal/training"
	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/spf13/cobra"
)

var (
	findThreshold float64
	findGallery   string
	findFromDB    bool
)

var findCmd = &cobra.Command{
	Use:   "find <image_path>",
	Short: "Recognize the most prominent face in a still image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFind(cmd.Context(), args[0])
	},
}

func init() {
	findCmd.Flags().Float64VarP(&findThreshold, "threshold", "t", 0, "Match threshold (default: detection.match_threshold)")
	findCmd.Flags().StringVarP(&findGallery, "gallery", "g", "", "Artifact to match against (default: newest in gallery.dir)")
	findCmd.Flags().BoolVar(&findFromDB, "from-db", false, "Search the database gallery instead of an artifact")
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, imagePath string) error {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		utils.ShowError(os.Stderr, "Input file does not exist", err, nil)
		return err
	}
	threshold := findThreshold
	if threshold <= 0 {
		threshold = cfg.Detection.MatchThreshold
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	eng := engine.NewPython(engineOptions(cfg), logger)
	defer eng.Close()
	if err := eng.Load(ctx); err != nil {
		utils.ShowError(os.Stderr, "Failed to start AI worker", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	desc, ok, err := training.DescribeFile(ctx, eng, imagePath, cfg.Detection.MinConfidence)
	if err != nil {
		utils.ShowError(os.Stderr, "AI processing failed", err, nil)
		return err
	}
	if !ok {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	res, err := findMatch(ctx, desc, threshold)
	if err != nil {
		utils.ShowError(os.Stderr, "Gallery search failed", err, nil)
		return err
	}
	if !res.Known() {
		fmt.Printf("❌ No match found (closest distance %.2f).\n", res.Distance)
		return nil
	}
	fmt.Printf("✅ Found Match: %s\n", res)
	return nil
}

// findMatch uses the same threshold rule as the live overlay for both
// gallery sources.
func findMatch(ctx context.Context, desc match.Descriptor, threshold float64) (match.Result, error) {
	if !findFromDB {
		g, err := gallerySource(cfg, findGallery).LoadGallery(ctx)
		if err != nil {
			return match.Result{}, err
		}
		m, err := match.New(g, threshold)
		if err != nil {
			return match.Result{}, err
		}
		return m.Match(desc)
	}

	fmt.Fprintln(os.Stderr, "🗄️  Searching database...")
	s, err := openStore(ctx)
	if err != nil {
		return match.Result{}, err
	}
	name, dist, found, err := s.FindClosest(ctx, desc)
	if err != nil {
		return match.Result{}, err
	}
	if !found {
		return match.Result{}, fmt.Errorf("%w: database gallery is empty", match.ErrInvalidInput)
	}
	return classify(name, dist, threshold), nil
}

func classify(name string, dist, threshold float64) match.Result {
	if dist > threshold {
		name = match.Unknown
	}
	return match.Result{Label: name, Distance: float32(dist)}
}
