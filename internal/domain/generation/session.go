package generation

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
)

// Conn is the client side of one chat connection: one free-text prompt in
// per turn, one or more text frames out.
type Conn interface {
	// ReadPrompt blocks for the next prompt. Any error ends the session.
	ReadPrompt(ctx context.Context) (string, error)
	// Send writes one text frame.
	Send(ctx context.Context, text string) error
}

// SessionOptions wires a Session.
type SessionOptions struct {
	ConversationID string
	Conn           Conn
	Config         ConfigProvider
	Dispatcher     *Dispatcher
	Coordinator    *Coordinator
	History        HistoryProvider
	Logger         *zap.Logger
}

// Session is the control loop of one connection. Prompts are handled one at
// a time in arrival order.
type Session struct {
	conversationID string
	conn           Conn
	config         ConfigProvider
	dispatcher     *Dispatcher
	coordinator    *Coordinator
	history        HistoryProvider
	logger         *zap.Logger
}

func NewSession(opts SessionOptions) *Session {
	s := &Session{
		conversationID: opts.ConversationID,
		conn:           opts.Conn,
		config:         opts.Config,
		dispatcher:     opts.Dispatcher,
		coordinator:    opts.Coordinator,
		history:        opts.History,
		logger:         opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.coordinator == nil {
		s.coordinator = NewCoordinator(s.logger, 0)
	}
	s.logger = s.logger.With(zap.String("conversation_id", s.conversationID))
	return s
}

// Run processes prompts until the connection is lost or ctx is done. A lost
// connection is a normal end and returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prompts := make(chan string)
	lost := make(chan struct{})
	go func() {
		defer close(lost)
		for {
			p, err := s.conn.ReadPrompt(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					s.logger.Debug("session: read ended", zap.Error(err))
				}
				return
			}
			select {
			case prompts <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-lost:
			s.logger.Debug("session: connection closed")
			return nil
		case p := <-prompts:
			if !s.handleTurn(ctx, p, lost) {
				s.logger.Info("session: connection lost during turn")
				return nil
			}
		}
	}
}

// handleTurn runs one prompt through pre-write, dispatch, delivery and
// completion. It reports whether the connection is still usable.
func (s *Session) handleTurn(ctx context.Context, prompt string, lost <-chan struct{}) bool {
	// Persistence outlives the connection.
	persistCtx := context.WithoutCancel(ctx)

	turnID, err := s.history.AppendTurn(persistCtx, s.conversationID, prompt)
	if err != nil {
		s.logger.Error("session: append turn failed", zap.Error(err))
		return s.send(ctx, "Error: message could not be saved", lost)
	}

	cfg, err := s.config.CurrentConfig(ctx)
	if err != nil {
		s.logger.Warn("session: configuration unavailable", zap.Error(err))
		cfg = Configuration{}
	}

	res := s.dispatcher.Dispatch(ctx, prompt, s.conversationID, cfg)
	switch res.Kind {
	case ResultImmediate:
		connected := s.send(ctx, res.Text, lost)
		s.complete(persistCtx, turnID, res.Text)
		return connected

	case ResultFailure:
		msg := res.Failure.UserMessage()
		s.logger.Info("session: turn failed", zap.Stringer("kind", res.Failure.Kind))
		connected := s.send(ctx, msg, lost)
		s.complete(persistCtx, turnID, msg)
		return connected

	case ResultStream:
		return s.streamTurn(ctx, persistCtx, turnID, res.Stream, lost)
	}
	return true
}

func (s *Session) streamTurn(ctx, persistCtx context.Context, turnID int64, h *Handle, lost <-chan struct{}) bool {
	stream := s.coordinator.Start(ctx, h)
	connected := true
	var streamErr error
	for connected {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		connected = s.send(ctx, chunk, lost)
	}
	// Join the generation goroutine whether or not anyone is listening.
	_ = stream.Close()

	if stream.State() == StateFailed {
		if streamErr == nil {
			streamErr = stream.Err()
		}
		if !connected {
			s.logger.Warn("session: stream failed after disconnect, turn left unanswered", zap.Error(streamErr))
			return false
		}
		msg := "Error: generation failed"
		var f *Failure
		if errors.As(streamErr, &f) {
			msg = f.UserMessage()
		}
		connected = s.send(ctx, msg, lost)
		s.complete(persistCtx, turnID, msg)
		return connected
	}

	s.complete(persistCtx, turnID, stream.Text())
	return connected
}

// send writes text unless the connection is already gone.
func (s *Session) send(ctx context.Context, text string, lost <-chan struct{}) bool {
	select {
	case <-lost:
		return false
	default:
	}
	if err := s.conn.Send(ctx, text); err != nil {
		s.logger.Debug("session: send failed", zap.Error(err))
		return false
	}
	return true
}

func (s *Session) complete(ctx context.Context, turnID int64, response string) {
	if err := s.history.CompleteTurn(ctx, turnID, response); err != nil {
		s.logger.Error("session: complete turn failed", zap.Int64("turn_id", turnID), zap.Error(err))
	}
}
