// Package gallery reads and writes the recognition model artifact: the
// labeled descriptor set produced by training and consumed by the detector.
package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/pkg/errors"
)

const (
	// Version is written into every artifact.
	Version = "1.0"

	filePrefix = "face_recognition_"
	fileSuffix = ".json"
)

var (
	// ErrMalformed marks an artifact that cannot be used to build a gallery.
	ErrMalformed = errors.New("malformed gallery artifact")
	// ErrNoArtifact is returned when a directory holds no artifact files.
	ErrNoArtifact = errors.New("no gallery artifact found")
)

// Person is one identity with all of its reference descriptors.
type Person struct {
	Name        string      `json:"name"`
	Descriptors [][]float32 `json:"descriptors"`
}

// Artifact is the on-disk model format.
type Artifact struct {
	Version          string    `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	TotalPeople      int       `json:"totalPeople"`
	TotalDescriptors int       `json:"totalDescriptors"`
	Data             []Person  `json:"data"`
}

// New assembles an artifact and fills in its totals.
func New(people []Person, now time.Time) *Artifact {
	a := &Artifact{Version: Version, CreatedAt: now.UTC(), Data: people}
	a.TotalPeople = len(people)
	for _, p := range people {
		a.TotalDescriptors += len(p.Descriptors)
	}
	return a
}

// Validate checks that the artifact can be turned into a matcher gallery.
func (a *Artifact) Validate() error {
	if len(a.Data) == 0 {
		return errors.Wrap(ErrMalformed, "artifact has no people")
	}
	dim := -1
	for i, p := range a.Data {
		if strings.TrimSpace(p.Name) == "" {
			return errors.Wrapf(ErrMalformed, "entry %d has no name", i)
		}
		if len(p.Descriptors) == 0 {
			return errors.Wrapf(ErrMalformed, "%q has no descriptors", p.Name)
		}
		for j, d := range p.Descriptors {
			if len(d) == 0 {
				return errors.Wrapf(ErrMalformed, "%q descriptor %d is empty", p.Name, j)
			}
			if dim == -1 {
				dim = len(d)
			}
			if len(d) != dim {
				return errors.Wrapf(ErrMalformed, "%q descriptor %d has %d values, expected %d", p.Name, j, len(d), dim)
			}
		}
	}
	return nil
}

// Gallery converts the artifact into the matcher's representation.
func (a *Artifact) Gallery() match.Gallery {
	g := make(match.Gallery, 0, len(a.Data))
	for _, p := range a.Data {
		ld := match.LabeledDescriptors{Label: p.Name, Descriptors: make([]match.Descriptor, 0, len(p.Descriptors))}
		for _, d := range p.Descriptors {
			ld.Descriptors = append(ld.Descriptors, match.Descriptor(d))
		}
		g = append(g, ld)
	}
	return g
}

// FromGallery is the inverse of Gallery.
func FromGallery(g match.Gallery, now time.Time) *Artifact {
	people := make([]Person, 0, len(g))
	for _, ld := range g {
		p := Person{Name: ld.Label}
		for _, d := range ld.Descriptors {
			p.Descriptors = append(p.Descriptors, []float32(d))
		}
		people = append(people, p)
	}
	return New(people, now)
}

// Read decodes and validates an artifact file.
func Read(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read gallery artifact")
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "decode %s: %v", filepath.Base(path), err)
	}
	if err := a.Validate(); err != nil {
		return nil, errors.Wrap(err, filepath.Base(path))
	}
	return &a, nil
}

// Write stores a under dir as face_recognition_<unix-ms>.json and returns the path.
func Write(dir string, a *Artifact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create gallery dir")
	}
	raw, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode gallery artifact")
	}
	path := filepath.Join(dir, FileName(a.CreatedAt))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", errors.Wrap(err, "write gallery artifact")
	}
	return path, nil
}

// FileName returns the artifact file name for a creation time.
func FileName(t time.Time) string {
	return filePrefix + strconv.FormatInt(t.UnixMilli(), 10) + fileSuffix
}

// Latest returns the path of the newest artifact in dir, judged by the
// timestamp embedded in the file name.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, "list gallery dir")
	}

	type candidate struct {
		name string
		ts   int64
	}
	var found []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		found = append(found, candidate{name: name, ts: ts})
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoArtifact, dir)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ts > found[j].ts })
	return filepath.Join(dir, found[0].name), nil
}

// FileSource loads the gallery from a fixed artifact path, or the newest
// artifact in Dir when Path is empty.
type FileSource struct {
	Path string
	Dir  string
}

// Resolve returns the artifact path that LoadGallery would read.
func (s FileSource) Resolve() (string, error) {
	if s.Path != "" {
		return s.Path, nil
	}
	if s.Dir == "" {
		return "", errors.Wrap(ErrNoArtifact, "no gallery path or dir configured")
	}
	return Latest(s.Dir)
}

// LoadGallery reads and converts the artifact.
func (s FileSource) LoadGallery(ctx context.Context) (match.Gallery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Resolve()
	if err != nil {
		return nil, err
	}
	a, err := Read(path)
	if err != nil {
		return nil, err
	}
	return a.Gallery(), nil
}
