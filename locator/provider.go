// Package locator lazily connects to a configured repository and keeps the
// live handle until its selector or credentials change.
//
// A Provider never returns an error from its read path. Failures to read the
// catalogue, resolve the selector, load an implementation or connect are
// logged, counted, recorded on the reconcile span and exposed through Err,
// while Repository returns nil. Callers poll Repository again to retry.
package locator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timzifer/repolocator/repository"
	"github.com/timzifer/repolocator/telemetry"
)

// Settings holds the connection parameters of a provider.
type Settings struct {
	Selector string
	Username string
	Password string
}

// Strategy identifies how a provider obtains its handle.
type Strategy string

const (
	// StrategyResolving resolves the selector through a metadata source and
	// loads a fresh implementation on every reconcile.
	StrategyResolving Strategy = "resolving"
	// StrategySupplied reconnects a handle supplied by the host in place.
	StrategySupplied Strategy = "supplied"
)

var errPanic = errors.New("repository panicked")

type strategy interface {
	kind() Strategy
	reconcile(ctx context.Context, p *Provider) (repository.Handle, error)
	reset(p *Provider)
}

// Provider caches a single connected repository handle.
//
// All methods are safe for concurrent use. Setters only record the new value
// and mark the handle stale; the disconnect and reconnect happen on the next
// call to Repository.
type Provider struct {
	mu sync.Mutex

	settings Settings
	strategy strategy

	handle  repository.Handle
	retired []repository.Handle
	dirty   bool
	lastErr error

	// connectedAs is the telemetry label the current connection was reported under.
	connectedAs string

	logger    zerolog.Logger
	telemetry telemetry.Collector
	tracer    trace.Tracer
}

// NewResolving creates a provider that looks up its selector in source and
// instantiates the matching implementation through loader.
func NewResolving(source repository.MetadataSource, loader repository.Loader, opts ...Option) (*Provider, error) {
	return newProvider(&resolvingStrategy{source: source, loader: loader}, nil, opts)
}

// NewSupplied creates a provider around a handle constructed by the host.
// The handle is connected on first access and reconnected in place after
// every settings change. The selector is informational only.
func NewSupplied(handle repository.Handle, opts ...Option) (*Provider, error) {
	return newProvider(suppliedStrategy{}, handle, opts)
}

func newProvider(s strategy, handle repository.Handle, opts []Option) (*Provider, error) {
	cfg := options{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("locator")
	}
	return &Provider{
		settings:  cfg.settings,
		strategy:  s,
		handle:    handle,
		dirty:     true,
		logger:    cfg.logger.With().Str("component", "locator").Str("strategy", string(s.kind())).Logger(),
		telemetry: cfg.telemetry,
		tracer:    cfg.tracer,
	}, nil
}

// Strategy reports how the provider obtains its handle.
func (p *Provider) Strategy() Strategy {
	return p.strategy.kind()
}

// Settings returns a copy of the current connection parameters.
func (p *Provider) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSelector changes the repository name and invalidates the cached handle.
func (p *Provider) SetSelector(selector string) {
	p.update(func(s *Settings) { s.Selector = selector })
}

// SetUsername changes the username and invalidates the cached handle.
func (p *Provider) SetUsername(username string) {
	p.update(func(s *Settings) { s.Username = username })
}

// SetPassword changes the password and invalidates the cached handle.
func (p *Provider) SetPassword(password string) {
	p.update(func(s *Settings) { s.Password = password })
}

// Apply replaces all connection parameters at once.
func (p *Provider) Apply(settings Settings) {
	p.update(func(s *Settings) { *s = settings })
}

func (p *Provider) update(fn func(*Settings)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.settings)
	p.dirty = true
}

// SetSource replaces the metadata source of a resolving provider.
func (p *Provider) SetSource(source repository.MetadataSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.strategy.(*resolvingStrategy)
	if !ok {
		p.logger.Warn().Msg("metadata source ignored by supplied-handle provider")
		return
	}
	s.source = source
	p.dirty = true
}

// SetLoader replaces the implementation loader of a resolving provider.
func (p *Provider) SetLoader(loader repository.Loader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.strategy.(*resolvingStrategy)
	if !ok {
		p.logger.Warn().Msg("loader ignored by supplied-handle provider")
		return
	}
	s.loader = loader
	p.dirty = true
}

// SetHandle replaces the handle of a supplied-handle provider. The previous
// handle is disconnected on the next access.
func (p *Provider) SetHandle(handle repository.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.strategy.kind() != StrategySupplied {
		p.logger.Warn().Msg("handle ignored by resolving provider")
		return
	}
	if p.handle != nil {
		p.retired = append(p.retired, p.handle)
	}
	p.handle = handle
	p.dirty = true
}

// Repository returns the connected handle, reconciling it with the current
// settings first when needed. It returns nil when no connected handle can be
// produced; Err reports why.
func (p *Provider) Repository(ctx context.Context) repository.Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil && !p.dirty {
		return p.handle
	}

	ctx, span := p.tracer.Start(ctx, "Provider::Reconcile", trace.WithAttributes(
		attribute.String("locator.strategy", string(p.strategy.kind())),
		attribute.String("repository.selector", p.settings.Selector),
	))
	defer span.End()

	retired := p.retired
	p.retired = nil
	for _, old := range retired {
		_ = p.disconnect(old)
	}

	handle, err := p.reconcileSafely(ctx)
	if err != nil {
		p.lastErr = err
		p.report(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil
	}

	p.lastErr = nil
	p.dirty = false
	p.connectedAs = p.label()
	p.telemetry.SetConnected(p.connectedAs, true)
	identity := identityOf(handle)
	span.SetAttributes(attribute.String("repository.identity", identity))
	p.logger.Info().Str("selector", p.settings.Selector).Str("repository", identity).Msg("repository connected")
	return handle
}

func (p *Provider) reconcileSafely(ctx context.Context) (handle repository.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle = nil
			err = fmt.Errorf("repository %q: %w: %v", p.settings.Selector, errPanic, r)
		}
	}()
	return p.strategy.reconcile(ctx, p)
}

// ResetConnection invalidates the cached handle. A resolving provider
// disconnects and drops it immediately; a supplied-handle provider reconnects
// on the next access. Without a handle this is a no-op.
func (p *Provider) ResetConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return
	}
	p.strategy.reset(p)
}

// Err returns the failure of the most recent reconcile, or nil.
func (p *Provider) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Close disconnects and releases every handle held by the provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	retired := p.retired
	p.retired = nil
	var errs []error
	for _, old := range retired {
		if err := p.disconnect(old); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.disconnect(p.handle); err != nil {
		errs = append(errs, err)
	}
	p.handle = nil
	p.dirty = true
	return errors.Join(errs...)
}

// disconnect tears down a connected handle. Errors and panics are logged and
// returned for Close; the handle is considered released either way.
func (p *Provider) disconnect(handle repository.Handle) (err error) {
	if handle == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("disconnect %s: %w: %v", identityOf(handle), errPanic, r)
			p.logger.Debug().Err(err).Msg("unable to disconnect repository")
		}
	}()
	if !handle.IsConnected() {
		return nil
	}
	label := p.connectedAs
	if label == "" {
		label = p.label()
	}
	p.connectedAs = ""
	p.telemetry.IncDisconnect(label)
	p.telemetry.SetConnected(label, false)
	if derr := handle.Disconnect(); derr != nil {
		identity := identityOf(handle)
		p.logger.Debug().Err(derr).Str("repository", identity).Msg("unable to disconnect repository")
		return fmt.Errorf("disconnect %s: %w", identity, derr)
	}
	return nil
}

func (p *Provider) report(err error) {
	stage := stageOf(err)
	p.telemetry.IncFailure(p.label(), stage)
	p.logger.Debug().Err(err).Str("selector", p.settings.Selector).Str("stage", stage).Msg("repository unavailable")
}

func (p *Provider) label() string {
	if p.settings.Selector != "" {
		return p.settings.Selector
	}
	if p.handle != nil {
		return identityOf(p.handle)
	}
	return "unknown"
}

// identityOf returns the handle's identity, or "unknown" if Identity panics.
func identityOf(handle repository.Handle) (identity string) {
	defer func() {
		if recover() != nil {
			identity = "unknown"
		}
	}()
	return handle.Identity()
}

func stageOf(err error) string {
	switch {
	case errors.Is(err, repository.ErrMetadataRead):
		return telemetry.StageMetadata
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrNoHandle):
		return telemetry.StageResolve
	case errors.Is(err, repository.ErrLoad):
		return telemetry.StageLoad
	default:
		return telemetry.StageConnect
	}
}
