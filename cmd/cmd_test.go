package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/config"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/andresmejia3/faceoverlay/internal/store"
	"github.com/andresmejia3/faceoverlay/internal/training"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Person", "Total"}, [][]string{{"alice", "12"}, {"bob"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "PERSON")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "12")
	assert.Len(t, strings.Split(out, "\n"), 6)

	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestEvaluationRows(t *testing.T) {
	report := training.Report{
		LabelStats: training.LabelStats{Label: "overall", Total: 4, Correct: 3},
		PerLabel: []training.LabelStats{
			{Label: "alice", Total: 2, Correct: 2},
			{Label: "bob", Total: 2, Correct: 1},
		},
	}
	rows := evaluationRows(report)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"alice", "2", "2", "100.00%"}, rows[0])
	assert.Equal(t, []string{"bob", "1", "2", "50.00%"}, rows[1])
	assert.Equal(t, []string{"overall", "3", "4", "75.00%"}, rows[2])
}

func TestPeopleRows(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)
	rows := peopleRows([]store.Person{{ID: 7, Name: "alice", Count: 3, CreatedAt: created}})
	assert.Equal(t, [][]string{{"7", "alice", "3", "2024-03-01 12:30"}}, rows)
}

func TestClassifyUsesStrictThreshold(t *testing.T) {
	assert.Equal(t, "alice", classify("alice", 0.6, 0.6).Label)
	assert.Equal(t, match.Unknown, classify("alice", 0.61, 0.6).Label)
	assert.InDelta(t, 0.61, classify("alice", 0.61, 0.6).Distance, 1e-6)
}

func TestOptionsFromConfig(t *testing.T) {
	c := config.Default()

	d := detectorOptions(&c)
	assert.Equal(t, 3, d.MaxAttempts)
	assert.Equal(t, 2*time.Second, d.RetryDelay)
	assert.Equal(t, 100*time.Millisecond, d.VideoPoll.Interval)
	assert.Equal(t, 100, d.VideoPoll.MaxAttempts)
	assert.Equal(t, c.Detection.ReinitOnSeek, d.ReinitOnSeek)

	s := supervisorOptions(&c)
	assert.True(t, s.TargetPattern.MatchString("player:///watch?v=0"))
	assert.Equal(t, 200*time.Millisecond, s.PagePoll.Interval)
	assert.Equal(t, 50, s.PagePoll.MaxAttempts)

	e := engineOptions(&c)
	assert.Equal(t, 416, e.WorkingWidth)
	assert.Equal(t, 5*time.Second, e.RequestTimeout)

	c.Player.Sources = []string{"a.mp4"}
	assert.Equal(t, []string{"a.mp4"}, playerOptions(&c, nil).Sources)
	assert.Equal(t, []string{"b.mp4"}, playerOptions(&c, []string{"b.mp4"}).Sources)

	assert.Equal(t, "x.json", gallerySource(&c, "x.json").Path)
	assert.Equal(t, c.Gallery.Dir, gallerySource(&c, "").Dir)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	written, err := initConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	_, err = initConfig(path, false)
	assert.ErrorContains(t, err, "already exists")

	_, err = initConfig(path, true)
	require.NoError(t, err)

	loaded, _, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "/watch", loaded.Navigation.TargetPattern)
}

func TestSkipConfig(t *testing.T) {
	assert.True(t, skipConfig(configInitCmd))
	assert.False(t, skipConfig(watchCmd))
	assert.False(t, skipConfig(galleryListCmd))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"watch", "train", "evaluate", "split", "gallery", "label", "find", "reset", "config"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestRemoveArtifacts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"face_recognition_1.json", "face_recognition_2.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	assert.Equal(t, 2, removeArtifacts(dir))
	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "notes.txt", left[0].Name())
}

func TestSplitCommand(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "raw")
	out := filepath.Join(t.TempDir(), "data")
	for _, person := range []string{"alice", "bob"} {
		require.NoError(t, os.MkdirAll(filepath.Join(raw, person), 0o755))
		for i := 0; i < 5; i++ {
			name := filepath.Join(raw, person, string(rune('a'+i))+".jpg")
			require.NoError(t, os.WriteFile(name, []byte("jpeg"), 0o644))
		}
	}

	rootCmd.SetArgs([]string{
		"--config", filepath.Join(t.TempDir(), "missing.toml"),
		"split", "-i", raw, "-o", out, "--seed", "7",
	})
	require.NoError(t, rootCmd.Execute())

	for _, person := range []string{"alice", "bob"} {
		train, err := os.ReadDir(filepath.Join(out, "train", person))
		require.NoError(t, err)
		test, err := os.ReadDir(filepath.Join(out, "test", person))
		require.NoError(t, err)
		assert.Len(t, train, 4)
		assert.Len(t, test, 1)
	}
}
