package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/andresmejia3/faceoverlay/internal/logging"
	"github.com/andresmejia3/faceoverlay/internal/overlay"
)

// Control actions.
const (
	ActionStart       = "startDetection"
	ActionStop        = "stopDetection"
	ActionUpdateColor = "updateColor"
)

// Message is one control request.
type Message struct {
	Action string `json:"action"`
	Color  string `json:"color,omitempty"`
}

// Reply acknowledges a message.
type Reply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher turns control messages into supervisor lifecycle changes.
type Dispatcher struct {
	newSupervisor func() *Supervisor
	appearance    *overlay.Appearance
	log           *slog.Logger

	mu     sync.Mutex
	sup    *Supervisor
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher returns a stopped dispatcher. newSupervisor is called for
// every start.
func NewDispatcher(newSupervisor func() *Supervisor, appearance *overlay.Appearance, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		newSupervisor: newSupervisor,
		appearance:    appearance,
		log:           logging.NewComponentLogger(log, "dispatcher"),
	}
}

// Handle applies msg. Starting twice or stopping while stopped is a no-op.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) error {
	switch msg.Action {
	case ActionStart:
		d.start(ctx)
	case ActionStop:
		d.Stop()
	case ActionUpdateColor:
		c, err := overlay.ParseColor(msg.Color)
		if err != nil {
			return fmt.Errorf("update color: %w", err)
		}
		d.appearance.SetColor(c)
		d.log.Info("box color updated", "color", overlay.FormatColor(c))
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
	return nil
}

func (d *Dispatcher) start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sup != nil {
		return
	}

	sup := d.newSupervisor()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sup.Run(runCtx); err != nil {
			d.log.Error("supervisor stopped", logging.Error(err))
		}
	}()

	d.sup, d.cancel, d.done = sup, cancel, done
	d.log.Info("detection started")
}

// Stop tears the supervisor and its detector down and waits for them.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	sup, cancel, done := d.sup, d.cancel, d.done
	d.sup, d.cancel, d.done = nil, nil, nil
	d.mu.Unlock()

	if sup == nil {
		return
	}
	cancel()
	<-done
	d.log.Info("detection stopped")
}

// Running reports whether a supervisor is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sup != nil
}

// Serve reads JSON messages, one per line, from r and writes a Reply per
// message to w until r is exhausted or ctx ends. Blank lines are skipped.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
		close(lines)
	}()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			reply := Reply{Success: true}
			var msg Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				reply = Reply{Error: fmt.Sprintf("decode message: %v", err)}
			} else if err := d.Handle(ctx, msg); err != nil {
				reply = Reply{Error: err.Error()}
			}
			if reply.Error != "" {
				d.log.Warn("control message rejected", "error", reply.Error)
			}
			if err := enc.Encode(reply); err != nil {
				return err
			}
		}
	}
}
