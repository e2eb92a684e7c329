package training

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/engine"
	"github.com/andresmejia3/faceoverlay/internal/gallery"
	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/andresmejia3/faceoverlay/internal/utils"
)

// TrainReport summarizes a training run.
type TrainReport struct {
	Images  int
	Faces   int
	Skipped []string
}

// Trainer computes one descriptor per training image.
type Trainer struct {
	Engine        engine.Engine
	MinConfidence float64
	Log           *slog.Logger
	// OnImage is called after every image, successful or not.
	OnImage func()
}

// CountImages returns the number of images across all label directories.
func CountImages(dir string) (int, error) {
	labels, err := utils.ListLabels(dir)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, label := range labels {
		images, err := utils.ListImages(filepath.Join(dir, label))
		if err != nil {
			return 0, err
		}
		total += len(images)
	}
	return total, nil
}

// Train builds an artifact from trainDir. People without a single detected
// face are left out and listed in the report.
func (t *Trainer) Train(ctx context.Context, trainDir string, now time.Time) (*gallery.Artifact, TrainReport, error) {
	var report TrainReport
	log := logging.NewComponentLogger(t.Log, "training")

	if err := t.Engine.Load(ctx); err != nil {
		return nil, report, fmt.Errorf("load models: %w", err)
	}

	labels, err := utils.ListLabels(trainDir)
	if err != nil {
		return nil, report, fmt.Errorf("list people: %w", err)
	}

	var people []gallery.Person
	for _, label := range labels {
		images, err := utils.ListImages(filepath.Join(trainDir, label))
		if err != nil {
			return nil, report, fmt.Errorf("list images for %s: %w", label, err)
		}

		person := gallery.Person{Name: label}
		for _, path := range images {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
			report.Images++
			desc, ok, err := DescribeFile(ctx, t.Engine, path, t.MinConfidence)
			t.tick()
			if err != nil {
				log.Warn("image skipped", "path", path, logging.Error(err))
				continue
			}
			if !ok {
				continue
			}
			person.Descriptors = append(person.Descriptors, desc)
			report.Faces++
		}

		if len(person.Descriptors) == 0 {
			log.Warn("no faces detected", "label", label)
			report.Skipped = append(report.Skipped, label)
			continue
		}
		people = append(people, person)
	}

	if len(people) == 0 {
		return nil, report, fmt.Errorf("no faces found under %s", trainDir)
	}
	return gallery.New(people, now), report, nil
}

func (t *Trainer) tick() {
	if t.OnImage != nil {
		t.OnImage()
	}
}

// DescribeFile returns the descriptor of the highest scoring face in path.
// ok is false when no face reaches minConfidence.
func DescribeFile(ctx context.Context, eng engine.Engine, path string, minConfidence float64) (match.Descriptor, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	res, err := eng.DetectAll(ctx, img, minConfidence)
	if err != nil {
		return nil, false, err
	}
	best, ok := res.Best()
	if !ok {
		return nil, false, nil
	}
	return best.Descriptor, true, nil
}
