package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/geometry"
	"github.com/andresmejia3/faceoverlay/internal/utils"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

const (
	opPing   byte = 0
	opDetect byte = 1

	statusOK    byte = 0
	statusError byte = 1

	// maxReply guards against reading garbage as a length header.
	maxReply = 64 << 20

	// faceHeader is the fixed part of each face: box, score and dim.
	faceHeader = 24
)

// Options configures the python worker process.
type Options struct {
	Python         string
	Script         string
	ModelsDir      string
	WorkingWidth   int
	RequestTimeout time.Duration
	JPEGQuality    int
}

// PythonEngine runs inference in a python child process. Requests are sent
// on stdin as [len][op][minConfidence][jpeg] and replies come back on a
// dedicated pipe (fd 3) so worker logging on stdout/stderr cannot corrupt
// the stream.
type PythonEngine struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	worker  *worker
	pending chan reply
}

type worker struct {
	cmd      *utils.SafeCommand
	stdin    io.WriteCloser
	dataPipe io.ReadCloser
}

// NewPython returns an engine that starts its worker on Load.
func NewPython(opts Options, log *slog.Logger) *PythonEngine {
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = 90
	}
	if log == nil {
		log = slog.Default()
	}
	return &PythonEngine{opts: opts, log: log.With("component", "engine")}
}

func startWorker(opts Options) (*worker, error) {
	args := []string{"-u", opts.Script}
	if opts.ModelsDir != "" {
		args = append(args, "--models", opts.ModelsDir)
	}
	py := utils.NewSafeCommand(opts.Python, args...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker failed to start: %w", err)
	}

	// Only the child keeps the write end.
	w.Close()

	return &worker{cmd: py, stdin: stdin, dataPipe: r}, nil
}

// Load starts the worker and waits for it to answer a ping, which it only
// does once its models are in memory.
func (e *PythonEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.worker != nil {
		return nil
	}

	w, err := startWorker(e.opts)
	if err != nil {
		return errors.Wrap(err, "load models")
	}
	e.worker = w

	start := time.Now()
	if _, err := e.roundTrip(ctx, encodeRequest(opPing, 0, nil)); err != nil {
		e.shutdown()
		return errors.Wrap(err, "load models")
	}
	e.log.Info("models loaded", "script", e.opts.Script, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (e *PythonEngine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.worker != nil
}

// DetectAll downscales img to the working width, sends it to the worker and
// decodes the detections.
func (e *PythonEngine) DetectAll(ctx context.Context, img image.Image, minConfidence float64) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.worker == nil {
		return Result{}, ErrNotLoaded
	}

	scaled := e.downscale(img)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: e.opts.JPEGQuality}); err != nil {
		return Result{}, errors.Wrap(err, "encode frame")
	}

	body, err := e.roundTrip(ctx, encodeRequest(opDetect, float32(minConfidence), buf.Bytes()))
	if err != nil {
		return Result{}, err
	}

	dets, err := decodeDetections(body)
	if err != nil {
		return Result{}, err
	}

	res := Result{Size: geometry.SizeOf(scaled.Bounds())}
	for _, d := range dets {
		if float64(d.Score) >= minConfidence {
			res.Detections = append(res.Detections, d)
		}
	}
	return res, nil
}

func (e *PythonEngine) downscale(img image.Image) image.Image {
	w := img.Bounds().Dx()
	if e.opts.WorkingWidth <= 0 || w <= e.opts.WorkingWidth {
		return img
	}
	return resize.Resize(uint(e.opts.WorkingWidth), 0, img, resize.Bilinear)
}

type reply struct {
	body []byte
	err  error
}

// roundTrip must be called with e.mu held. A timeout or transport failure
// kills the worker; the next Load starts a fresh one. A caller that gives up
// early leaves the worker running and its reply is discarded before the next
// request goes out.
func (e *PythonEngine) roundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if err := e.drain(ctx); err != nil {
		return nil, err
	}
	w := e.worker
	if w == nil {
		return nil, ErrNotLoaded
	}

	done := make(chan reply, 1)
	go func() {
		body, err := w.communicate(req)
		done <- reply{body, err}
	}()
	return e.await(ctx, w, done)
}

// drain waits out a reply abandoned by an earlier caller.
func (e *PythonEngine) drain(ctx context.Context) error {
	done := e.pending
	if done == nil {
		return nil
	}
	e.pending = nil
	_, err := e.await(ctx, e.worker, done)
	if err != nil && (e.worker == nil || e.pending != nil) {
		return err
	}
	if err != nil {
		e.log.Debug("discarded stale worker reply", "err", err)
	}
	return nil
}

func (e *PythonEngine) await(ctx context.Context, w *worker, done chan reply) ([]byte, error) {
	var timeout <-chan time.Time
	if e.opts.RequestTimeout > 0 {
		t := time.NewTimer(e.opts.RequestTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-done:
		if r.err != nil {
			tail := w.cmd.Tail(512)
			e.shutdown()
			if tail != "" {
				return nil, errors.Wrapf(r.err, "worker transport (stderr: %s)", tail)
			}
			return nil, errors.Wrap(r.err, "worker transport")
		}
		return checkStatus(r.body)
	case <-timeout:
		e.shutdown()
		return nil, errors.Wrapf(context.DeadlineExceeded, "worker did not answer within %s", e.opts.RequestTimeout)
	case <-ctx.Done():
		e.pending = done
		return nil, ctx.Err()
	}
}

// Close stops the worker. It is safe to call more than once.
func (e *PythonEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown()
}

func (e *PythonEngine) shutdown() error {
	w := e.worker
	if w == nil {
		return nil
	}
	e.worker = nil
	e.pending = nil
	return w.close()
}

func (w *worker) communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.dataPipe, header); err != nil {
		return nil, err
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxReply {
		return nil, fmt.Errorf("reply of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.dataPipe, respBody)
	return respBody, err
}

func (w *worker) close() error {
	w.stdin.Close()
	w.dataPipe.Close()
	if w.cmd == nil || w.cmd.Process == nil {
		return nil
	}
	_ = w.cmd.Process.Kill()
	_ = w.cmd.Wait()
	return nil
}

func encodeRequest(op byte, minConfidence float32, frame []byte) []byte {
	out := make([]byte, 0, 5+len(frame))
	out = append(out, op)
	out = binary.BigEndian.AppendUint32(out, math.Float32bits(minConfidence))
	return append(out, frame...)
}

// checkStatus strips the status byte, turning an error reply into ErrWorker.
func checkStatus(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, errors.New("empty worker reply")
	}
	switch body[0] {
	case statusOK:
		return body[1:], nil
	case statusError:
		r := bytes.NewReader(body[1:])
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, errors.Wrap(err, "read worker error length")
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, errors.Wrap(err, "read worker error message")
		}
		return nil, fmt.Errorf("%w: %s", ErrWorker, msg)
	default:
		return nil, fmt.Errorf("unknown worker status %d", body[0])
	}
}

// decodeDetections parses [NumFaces] then per face [Box 4xf32] [Score f32]
// [Dim u32] [Descriptor Dim x f32].
func decodeDetections(body []byte) ([]Detection, error) {
	r := bytes.NewReader(body)
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, errors.Wrap(err, "read face count")
	}

	if uint64(n)*faceHeader > uint64(r.Len()) {
		return nil, fmt.Errorf("face count %d exceeds a reply of %d bytes", n, len(body))
	}

	out := make([]Detection, 0, n)
	for i := uint32(0); i < n; i++ {
		var head struct {
			Box   [4]float32
			Score float32
			Dim   uint32
		}
		if err := binary.Read(r, binary.BigEndian, &head); err != nil {
			return nil, errors.Wrapf(err, "read face %d", i)
		}
		if int(head.Dim)*4 > r.Len() {
			return nil, fmt.Errorf("face %d descriptor of %d values is truncated", i, head.Dim)
		}
		desc := make([]float32, head.Dim)
		if err := binary.Read(r, binary.BigEndian, desc); err != nil {
			return nil, errors.Wrapf(err, "read face %d descriptor", i)
		}
		out = append(out, Detection{
			Box:        geometry.Box{X: float64(head.Box[0]), Y: float64(head.Box[1]), Width: float64(head.Box[2]), Height: float64(head.Box[3])},
			Score:      head.Score,
			Descriptor: desc,
		})
	}
	return out, nil
}
