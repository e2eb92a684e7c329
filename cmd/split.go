package cmd

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/training"
	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/spf13/cobra"
)

var (
	splitInput  string
	splitOutput string
	splitRatio  float64
	splitSeed   uint64
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Shuffle labeled images into train and test sets",
	Long: `Copies <input>/<label>/* into <output>/train/<label> and <output>/test/<label>,
shuffling each person's images and keeping --ratio of them for training.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSplit()
	},
}

func init() {
	splitCmd.Flags().StringVarP(&splitInput, "input", "i", "data/raw", "Directory with one subdirectory of images per person")
	splitCmd.Flags().StringVarP(&splitOutput, "output", "o", "data", "Directory receiving train/ and test/")
	splitCmd.Flags().Float64VarP(&splitRatio, "ratio", "r", training.DefaultTrainRatio, "Fraction of each person's images used for training")
	splitCmd.Flags().Uint64Var(&splitSeed, "seed", 0, "Shuffle seed (default: time based)")
	rootCmd.AddCommand(splitCmd)
}

func runSplit() error {
	seed := splitSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	counts, err := training.Split(splitInput, splitOutput, splitRatio, rng)
	if err != nil {
		utils.ShowError(os.Stderr, "Split failed", err, nil)
		return err
	}

	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Label, fmt.Sprintf("%d", c.Train), fmt.Sprintf("%d", c.Test)})
	}
	fmt.Println(renderTable([]string{"Person", "Train", "Test"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	fmt.Printf("✅ Split %d people into %s\n", len(counts), splitOutput)
	return nil
}
