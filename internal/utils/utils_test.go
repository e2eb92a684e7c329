package utils

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListImagesAndLabels(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"alice/1.jpg", "alice/2.PNG", "alice/notes.txt", "bob/a.jpeg", ".cache/x.jpg"} {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	labels, err := ListLabels(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, labels)

	imgs, err := ListImages(filepath.Join(root, "alice"))
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, "1.jpg", filepath.Base(imgs[0]))
	assert.Equal(t, "2.PNG", filepath.Base(imgs[1]))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg bytes"), 0o644))

	dst := filepath.Join(dir, "nested", "out", "dst.jpg")
	require.NoError(t, CopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(got))
}

func TestShowErrorIncludesWorkerLogs(t *testing.T) {
	s := NewSafeCommand("python3")
	s.Stderr.WriteString("Traceback: boom")

	var out bytes.Buffer
	ShowError(&out, "engine failed", errors.New("pipe closed"), s)

	assert.Contains(t, out.String(), "engine failed")
	assert.Contains(t, out.String(), "pipe closed")
	assert.Contains(t, out.String(), "Traceback: boom")
}

func TestTail(t *testing.T) {
	s := NewSafeCommand("python3")
	s.Stderr.WriteString(strings.Repeat("a", 10) + "END")
	assert.Equal(t, "aEND", s.Tail(4))

	var nilCmd *SafeCommand
	assert.Empty(t, nilCmd.Tail(4))
}
