package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser,
// standing in for the OS pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

type fakeFace struct {
	box   [4]float32
	score float32
	desc  []float32
}

func okReply(faces ...fakeFace) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(statusOK)
	binary.Write(payload, binary.BigEndian, uint32(len(faces)))
	for _, f := range faces {
		binary.Write(payload, binary.BigEndian, f.box)
		binary.Write(payload, binary.BigEndian, f.score)
		binary.Write(payload, binary.BigEndian, uint32(len(f.desc)))
		binary.Write(payload, binary.BigEndian, f.desc)
	}
	return payload.Bytes()
}

func errReply(msg string) []byte {
	payload := new(bytes.Buffer)
	payload.WriteByte(statusError)
	binary.Write(payload, binary.BigEndian, uint32(len(msg)))
	payload.WriteString(msg)
	return payload.Bytes()
}

func framed(body []byte) *MockCloser {
	m := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(m, binary.BigEndian, uint32(len(body)))
	m.Write(body)
	return m
}

func mockEngine(opts Options, reply []byte) (*PythonEngine, *MockCloser) {
	stdin := &MockCloser{Buffer: new(bytes.Buffer)}
	e := NewPython(opts, nil)
	e.worker = &worker{stdin: stdin, dataPipe: framed(reply)}
	return e, stdin
}

func TestDetectAll(t *testing.T) {
	desc := make([]float32, 128)
	desc[0] = 0.5
	e, stdin := mockEngine(Options{WorkingWidth: 416}, okReply(
		fakeFace{box: [4]float32{10, 20, 30, 40}, score: 0.9, desc: desc},
		fakeFace{box: [4]float32{1, 1, 2, 2}, score: 0.2, desc: desc},
	))

	res, err := e.DetectAll(context.Background(), image.NewRGBA(image.Rect(0, 0, 832, 468)), 0.5)
	require.NoError(t, err)

	// The low scoring face is dropped even if the worker returned it.
	require.Len(t, res.Detections, 1)
	d := res.Detections[0]
	assert.Equal(t, 10.0, d.Box.X)
	assert.Equal(t, 40.0, d.Box.Height)
	assert.InDelta(t, 0.5, d.Descriptor[0], 1e-9)
	assert.Equal(t, 416, res.Size.Width)
	assert.Equal(t, 234, res.Size.Height)

	sent := stdin.Bytes()
	require.Greater(t, len(sent), 9)
	assert.Equal(t, uint32(len(sent)-4), binary.BigEndian.Uint32(sent[:4]))
	assert.Equal(t, opDetect, sent[4])
	// JPEG SOI marker follows the op and confidence fields.
	assert.Equal(t, []byte{0xFF, 0xD8}, sent[9:11])
}

func TestDetectAllKeepsSmallFrames(t *testing.T) {
	e, _ := mockEngine(Options{WorkingWidth: 416}, okReply())
	res, err := e.DetectAll(context.Background(), image.NewRGBA(image.Rect(0, 0, 320, 180)), 0.5)
	require.NoError(t, err)
	assert.Empty(t, res.Detections)
	assert.Equal(t, 320, res.Size.Width)
}

func TestDetectAllWorkerError(t *testing.T) {
	errMsg := "Python Exception: Import Error"
	e, _ := mockEngine(Options{}, errReply(errMsg))

	_, err := e.DetectAll(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 0.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorker)
	assert.Equal(t, "python worker error: "+errMsg, err.Error())
	// A reported error leaves the worker running.
	assert.True(t, e.Loaded())
}

func TestDetectAllTruncatedReplyDropsWorker(t *testing.T) {
	stdin := &MockCloser{Buffer: new(bytes.Buffer)}
	data := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(data, binary.BigEndian, uint32(100))
	data.Write([]byte{0, 0})

	e := NewPython(Options{}, nil)
	e.worker = &worker{stdin: stdin, dataPipe: data}

	_, err := e.DetectAll(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 0.5)
	require.Error(t, err)
	assert.False(t, e.Loaded())
}

func TestDetectAllNotLoaded(t *testing.T) {
	e := NewPython(Options{}, nil)
	_, err := e.DetectAll(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 0.5)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestRequestTimeoutKillsWorker(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	e := NewPython(Options{RequestTimeout: 20 * time.Millisecond}, nil)
	e.worker = &worker{stdin: &MockCloser{Buffer: new(bytes.Buffer)}, dataPipe: pr}

	_, err := e.DetectAll(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 0.5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, e.Loaded())
}

func TestCallerCancelKeepsWorker(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	e := NewPython(Options{RequestTimeout: 5 * time.Second}, nil)
	e.worker = &worker{stdin: &MockCloser{Buffer: new(bytes.Buffer)}, dataPipe: pr}
	frame := image.NewRGBA(image.Rect(0, 0, 8, 8))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := e.DetectAll(ctx, frame, 0.5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, e.Loaded())

	// The abandoned request is answered late; its face must not leak into
	// the next result.
	go func() {
		for _, body := range [][]byte{
			okReply(fakeFace{box: [4]float32{1, 2, 3, 4}, score: 0.9, desc: make([]float32, 128)}),
			okReply(),
		} {
			binary.Write(pw, binary.BigEndian, uint32(len(body)))
			pw.Write(body)
		}
	}()

	res, err := e.DetectAll(context.Background(), frame, 0.5)
	require.NoError(t, err)
	assert.Empty(t, res.Detections)
	assert.True(t, e.Loaded())
}

func TestDecodeDetectionsRejectsOversizedCount(t *testing.T) {
	_, err := decodeDetections([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "face count 4294967295")

	// One header's worth of bytes cannot hold two faces.
	body := binary.BigEndian.AppendUint32(nil, 2)
	body = append(body, make([]byte, faceHeader)...)
	_, err = decodeDetections(body)
	assert.Error(t, err)

	dets, err := decodeDetections(okReply()[1:])
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestCloseIsIdempotent(t *testing.T) {
	e, _ := mockEngine(Options{}, okReply())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.False(t, e.Loaded())
}

func TestResultBest(t *testing.T) {
	_, ok := Result{}.Best()
	assert.False(t, ok)

	best, ok := Result{Detections: []Detection{{Score: 0.4}, {Score: 0.95}, {Score: 0.7}}}.Best()
	require.True(t, ok)
	assert.Equal(t, float32(0.95), best.Score)
}
