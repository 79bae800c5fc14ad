package orchestration

import (
	"context"
	"sync"

	"github.com/imamik/infractl/internal/deployment"
)

// HandlerState is a state of the failure/interrupt handler.
type HandlerState int

// Handler states.
const (
	Running HandlerState = iota
	Failing
	Interrupted
	Terminated
)

func (s HandlerState) String() string {
	switch s {
	case Running:
		return "running"
	case Failing:
		return "failing"
	case Interrupted:
		return "interrupted"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EmergencyFunc copies the current state artifacts aside and returns the
// written paths.
type EmergencyFunc func() ([]string, error)

// Handler turns stage errors and external interrupts into a single,
// well-defined end of the run.
//
// Transitions:
//
//	Running -> Failing -> Terminated   (stage error, emergency copy)
//	Running -> Interrupted             (signal, run context cancelled)
//	Running -> Terminated              (success)
//
// Every transition happens at most once; later calls are no-ops.
type Handler struct {
	mu        sync.Mutex
	state     HandlerState
	stage     string
	cancel    context.CancelFunc
	emergency EmergencyFunc
	observer  Observer

	copyOnce sync.Once
	copies   []string
	copyErr  error
}

// NewHandler creates a Handler in the Running state. cancel aborts the run
// context; emergency may be nil.
func NewHandler(cancel context.CancelFunc, emergency EmergencyFunc, observer Observer) *Handler {
	return &Handler{
		state:     Running,
		cancel:    cancel,
		emergency: emergency,
		observer:  observer,
	}
}

// State returns the current state.
func (h *Handler) State() HandlerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Enter records the stage that is about to run.
func (h *Handler) Enter(stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stage = stage
}

// Interrupt moves a running handler to Interrupted and cancels the run
// context so the in-flight tool receives the cancellation.
func (h *Handler) Interrupt() {
	h.mu.Lock()
	if h.state != Running {
		h.mu.Unlock()
		return
	}
	h.state = Interrupted
	stage := h.stage
	h.mu.Unlock()

	h.observer.Printf("[??] interrupt received during %s stage, stopping", stageLabel(stage))
	if h.cancel != nil {
		h.cancel()
	}
}

// Watch interrupts the handler when parent is cancelled. The returned stop
// function must be called once the run is over.
func (h *Handler) Watch(parent context.Context) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-parent.Done():
			h.Interrupt()
		case <-done:
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// Fail ends the run because stage returned err. On a running handler it
// makes the emergency copy; on an interrupted one it reports the interrupt.
// The returned error is always a *deployment.StageError.
func (h *Handler) Fail(stage string, err error) error {
	h.mu.Lock()
	state := h.state
	if state == Running {
		h.state = Failing
	}
	h.mu.Unlock()

	switch state {
	case Interrupted:
		return &deployment.StageError{Stage: stage, Err: &deployment.InterruptedError{Stage: stage}}
	case Failing, Terminated:
		return &deployment.StageError{Stage: stage, Err: err, EmergencyCopies: h.copies}
	}

	LogStageFailed(h.observer, stage, err)
	copies := h.emergencyCopy()
	h.terminate()
	return &deployment.StageError{Stage: stage, Err: err, EmergencyCopies: copies}
}

// Interrupted reports an interrupt noticed outside a stage error: before
// stage started or after it returned.
func (h *Handler) Interrupted(next string) error {
	return &deployment.StageError{Stage: next, Err: &deployment.InterruptedError{Stage: next}}
}

// Done ends a successful run.
func (h *Handler) Done() {
	h.terminate()
}

func (h *Handler) terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Running || h.state == Failing {
		h.state = Terminated
	}
}

func (h *Handler) emergencyCopy() []string {
	h.copyOnce.Do(func() {
		if h.emergency == nil {
			return
		}
		h.copies, h.copyErr = h.emergency()
		if h.copyErr != nil {
			h.observer.Printf("[!!] emergency copy incomplete: %v", h.copyErr)
		}
		if len(h.copies) > 0 {
			h.observer.Printf("emergency copies written: %d file(s)", len(h.copies))
		}
	})
	return h.copies
}

func stageLabel(stage string) string {
	if stage == "" {
		return "startup"
	}
	return stage
}
