// Package training builds and scores recognition galleries from a dataset
// laid out as one directory of images per person.
package training

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"github.com/andresmejia3/faceoverlay/internal/utils"
)

// DefaultTrainRatio is the share of each person's images used for training.
const DefaultTrainRatio = 0.8

// SplitCount reports how one person's images were divided.
type SplitCount struct {
	Label string
	Train int
	Test  int
}

// Split shuffles each person's images under rawDir and copies the first
// ratio of them to outDir/train/<label> and the rest to outDir/test/<label>.
func Split(rawDir, outDir string, ratio float64, rng *rand.Rand) ([]SplitCount, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("train ratio %.2f out of range (0, 1]", ratio)
	}
	labels, err := utils.ListLabels(rawDir)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}

	counts := make([]SplitCount, 0, len(labels))
	for _, label := range labels {
		images, err := utils.ListImages(filepath.Join(rawDir, label))
		if err != nil {
			return nil, fmt.Errorf("list images for %s: %w", label, err)
		}
		rng.Shuffle(len(images), func(i, j int) { images[i], images[j] = images[j], images[i] })

		cut := int(float64(len(images)) * ratio)
		for i, src := range images {
			subset := "test"
			if i < cut {
				subset = "train"
			}
			dst := filepath.Join(outDir, subset, label, filepath.Base(src))
			if err := utils.CopyFile(src, dst); err != nil {
				return nil, fmt.Errorf("copy %s: %w", src, err)
			}
		}
		counts = append(counts, SplitCount{Label: label, Train: cut, Test: len(images) - cut})
	}
	return counts, nil
}
