package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StreamState is the lifecycle of one ChunkStream.
type StreamState int32

const (
	StateIdle StreamState = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrHandleReused is the failure of a stream started from a spent Handle.
var ErrHandleReused = errors.New("generation: stream handle already started")

const defaultStreamBuffer = 16

// Coordinator runs streaming generations in the background and hands their
// output to the caller as cumulative text.
type Coordinator struct {
	logger  *zap.Logger
	buffer  int
	timeout time.Duration
}

// NewCoordinator creates a Coordinator. timeout bounds one generation; zero
// leaves it unbounded.
func NewCoordinator(logger *zap.Logger, timeout time.Duration) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{logger: logger, buffer: defaultStreamBuffer, timeout: timeout}
}

// ChunkStream is a finite, non-restartable sequence of cumulative text. Each
// value from Recv is the full text generated so far.
type ChunkStream struct {
	events chan string
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once
	state    atomic.Int32

	mu    sync.Mutex
	final string
	err   error
}

// Start launches h on its own goroutine. The generation is not tied to ctx
// cancellation: once started it runs to completion (or timeout) even if the
// consumer goes away, so a shared backend is never left mid-generation.
func (c *Coordinator) Start(ctx context.Context, h *Handle) *ChunkStream {
	s := &ChunkStream{
		events: make(chan string, c.buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	if !h.used.CompareAndSwap(false, true) {
		s.finish("", &Failure{Kind: GenerationRuntimeError, Err: ErrHandleReused})
		return s
	}

	genCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		genCtx, cancel = context.WithTimeout(genCtx, c.timeout)
	}

	s.state.Store(int32(StateRunning))
	log := c.logger.With(zap.String("model", h.modelID))
	go func() {
		defer cancel()
		text, err := s.produce(genCtx, h)
		if err != nil {
			log.Warn("stream: generation failed", zap.Error(err), zap.Int("partial_len", len(text)))
			err = &Failure{Kind: GenerationRuntimeError, Err: err}
		}
		s.finish(text, err)
	}()
	return s
}

func (s *ChunkStream) produce(ctx context.Context, h *Handle) (text string, err error) {
	var sb strings.Builder
	defer func() {
		if r := recover(); r != nil {
			text, err = sb.String(), fmt.Errorf("generation panic: %v", r)
		}
	}()

	dropped := false
	err = h.backend.ChatStream(ctx, h.request, func(piece string) bool {
		if piece == "" {
			return true
		}
		sb.WriteString(piece)
		if dropped {
			return true
		}
		select {
		case s.events <- sb.String():
		case <-s.stop:
			dropped = true
		}
		return true
	})
	return sb.String(), err
}

func (s *ChunkStream) finish(text string, err error) {
	s.mu.Lock()
	s.final = text
	s.err = err
	s.mu.Unlock()
	if err != nil {
		s.state.Store(int32(StateFailed))
	} else {
		s.state.Store(int32(StateCompleted))
	}
	close(s.events)
	close(s.done)
}

// Recv returns the next cumulative chunk. After the last chunk it returns
// io.EOF on completion or the generation's *Failure.
func (s *ChunkStream) Recv() (string, error) {
	if chunk, ok := <-s.events; ok {
		return chunk, nil
	}
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

// Close stops delivery and waits for the generation goroutine to finish.
// It is safe to call more than once.
func (s *ChunkStream) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// Done is closed once the generation goroutine has returned.
func (s *ChunkStream) Done() <-chan struct{} { return s.done }

// State reports the current lifecycle state.
func (s *ChunkStream) State() StreamState { return StreamState(s.state.Load()) }

// Text returns the final cumulative text. It is only meaningful after Done.
func (s *ChunkStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final
}

// Err returns the terminal failure, if any.
func (s *ChunkStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
