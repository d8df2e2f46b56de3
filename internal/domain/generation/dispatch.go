package generation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/chatroute/internal/infra/llm"
)

// DefaultRemoteTimeout bounds one remote provider call.
const DefaultRemoteTimeout = 60 * time.Second

// ResultKind tags a dispatch Result.
type ResultKind int

const (
	ResultImmediate ResultKind = iota + 1
	ResultStream
	ResultFailure
)

// Result is exactly one of Immediate(Text), Stream(Stream) or Failure(Failure).
type Result struct {
	Kind    ResultKind
	Text    string
	Stream  *Handle
	Failure *Failure

	// Unrecognized marks an Immediate built from a remote body in an unknown
	// shape; Text is then the raw body.
	Unrecognized bool
}

func immediate(text string) Result { return Result{Kind: ResultImmediate, Text: text} }

func failed(f *Failure) Result { return Result{Kind: ResultFailure, Failure: f} }

// Handle is the prepared input of one streaming generation. It can be started
// once.
type Handle struct {
	backend llm.StreamingBackend
	request llm.ChatRequest
	modelID string
	used    atomic.Bool
}

// ModelID names the backend the handle will run on.
func (h *Handle) ModelID() string { return h.modelID }

// ProviderResolver builds a remote provider for a configured name.
type ProviderResolver interface {
	Resolve(name, credential string) (llm.RemoteProvider, error)
}

// DispatcherOptions wires a Dispatcher.
type DispatcherOptions struct {
	Cache     *BackendCache
	Loader    Loader
	Providers ProviderResolver
	History   TurnReader
	Logger    *zap.Logger

	// RemoteTimeout bounds one remote call; zero means DefaultRemoteTimeout.
	RemoteTimeout time.Duration

	// StrictProviderShapes turns an unrecognized remote body into a
	// ProviderResponseParseError instead of returning it as text.
	StrictProviderShapes bool
}

// Dispatcher selects and invokes one generation strategy per prompt.
type Dispatcher struct {
	cache         *BackendCache
	loader        Loader
	providers     ProviderResolver
	history       TurnReader
	logger        *zap.Logger
	remoteTimeout time.Duration
	strict        bool
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		cache:         opts.Cache,
		loader:        opts.Loader,
		providers:     opts.Providers,
		history:       opts.History,
		logger:        opts.Logger,
		remoteTimeout: opts.RemoteTimeout,
		strict:        opts.StrictProviderShapes,
	}
	if d.cache == nil {
		d.cache = NewBackendCache()
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.remoteTimeout <= 0 {
		d.remoteTimeout = DefaultRemoteTimeout
	}
	return d
}

// Dispatch picks a strategy from cfg and runs it. It never returns an error:
// every failure is a Result of kind ResultFailure.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, conversationID string, cfg Configuration) Result {
	log := d.logger.With(
		zap.String("conversation_id", conversationID),
		zap.Stringer("mode", cfg.Mode),
		zap.String("provider", cfg.ProviderName),
		zap.String("model", cfg.ModelID),
	)

	if cfg.Mode == ModeUnconfigured {
		return failed(&Failure{Kind: NotConfigured})
	}
	if err := cfg.Validate(); err != nil {
		log.Warn("dispatch: invalid configuration", zap.Error(err))
		return failed(&Failure{Kind: NotConfigured, Detail: "incomplete settings", Err: err})
	}

	switch cfg.Mode {
	case ModeLocal:
		return d.dispatchLocal(ctx, log, prompt, conversationID, cfg)
	case ModeRemoteAPI:
		return d.dispatchRemote(ctx, log, prompt, cfg)
	}
	return failed(&Failure{Kind: NotConfigured})
}

func (d *Dispatcher) dispatchLocal(ctx context.Context, log *zap.Logger, prompt, conversationID string, cfg Configuration) Result {
	if d.loader == nil {
		return failed(&Failure{Kind: ModelLoadFailed, Detail: "no local loader"})
	}
	backend, err := d.cache.GetOrLoad(ctx, cfg.ModelID, d.loader)
	if err != nil {
		log.Error("dispatch: local model load failed", zap.Error(err))
		return failed(&Failure{Kind: ModelLoadFailed, Err: err})
	}

	var prior []Turn
	if d.history != nil {
		prior, err = d.history.PriorTurns(ctx, conversationID)
		if err != nil {
			log.Warn("dispatch: prior turns unavailable", zap.Error(err))
			prior = nil
		}
	}

	req := llm.ChatRequest{
		Messages:    BuildMessages(cfg.SystemPrompt, prior, prompt),
		Temperature: cfg.EffectiveTemperature(),
		MaxTokens:   llm.DefaultMaxTokens,
	}

	if sb, ok := backend.(llm.StreamingBackend); ok {
		log.Debug("dispatch: local stream", zap.Int("messages", len(req.Messages)))
		return Result{Kind: ResultStream, Stream: &Handle{backend: sb, request: req, modelID: cfg.ModelID}}
	}

	resp, err := backend.ChatCompletion(ctx, req)
	if err != nil {
		log.Error("dispatch: local generation failed", zap.Error(err))
		return failed(&Failure{Kind: GenerationRuntimeError, Err: err})
	}
	return immediate(resp.Content)
}

func (d *Dispatcher) dispatchRemote(ctx context.Context, log *zap.Logger, prompt string, cfg Configuration) Result {
	log = log.With(zap.String("credential", MaskSecret(cfg.Credential)))
	if d.providers == nil {
		return failed(&Failure{Kind: NotConfigured, Detail: "no remote providers"})
	}
	provider, err := d.providers.Resolve(cfg.ProviderName, cfg.Credential)
	if err != nil {
		log.Warn("dispatch: unknown provider", zap.Error(err))
		return failed(&Failure{Kind: NotConfigured, Detail: "unknown provider " + cfg.ProviderName, Err: err})
	}

	ctx, cancel := context.WithTimeout(ctx, d.remoteTimeout)
	defer cancel()

	full := RemotePrompt(cfg.SystemPrompt, prompt)
	start := time.Now()
	completion, err := provider.Generate(ctx, llm.GenerateRequest{
		Model:       cfg.ModelID,
		Prompt:      full,
		Temperature: cfg.EffectiveTemperature(),
		MaxTokens:   llm.DefaultMaxTokens,
	})
	if err != nil {
		f := classifyRemoteError(err, cfg.Credential)
		log.Error("dispatch: remote call failed",
			zap.Stringer("kind", f.Kind),
			zap.Int("status", f.StatusCode),
			zap.String("detail", f.Detail),
			zap.Duration("elapsed", time.Since(start)))
		return failed(f)
	}

	if completion.Unrecognized {
		log.Warn("dispatch: unrecognized provider response shape", zap.Bool("strict", d.strict))
		if d.strict {
			return failed(&Failure{Kind: ProviderResponseParseError, Detail: "unrecognized response shape"})
		}
		return Result{Kind: ResultImmediate, Text: completion.Text, Unrecognized: true}
	}

	log.Debug("dispatch: remote call complete", zap.Duration("elapsed", time.Since(start)))
	return immediate(completion.Text)
}

// classifyRemoteError maps adapter errors to failure kinds, masking the
// credential in anything that reaches Detail.
func classifyRemoteError(err error, credential string) *Failure {
	var (
		httpErr    *llm.HTTPError
		logicalErr *llm.LogicalError
	)
	switch {
	case errors.As(err, &httpErr):
		return &Failure{Kind: ProviderHTTPError, StatusCode: httpErr.StatusCode, Detail: redact(httpErr.Body, credential), Err: err}
	case errors.Is(err, llm.ErrResponseParse):
		return &Failure{Kind: ProviderResponseParseError, Err: err}
	case errors.As(err, &logicalErr):
		return &Failure{Kind: ProviderLogicalError, Detail: redact(logicalErr.Message, credential), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: ProviderRequestError, Detail: "timed out", Err: err}
	}
	return &Failure{Kind: ProviderRequestError, Err: err}
}
