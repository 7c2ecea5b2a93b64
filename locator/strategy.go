package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/timzifer/repolocator/repository"
	"github.com/timzifer/repolocator/telemetry"
)

type resolvingStrategy struct {
	source repository.MetadataSource
	loader repository.Loader
}

func (*resolvingStrategy) kind() Strategy { return StrategyResolving }

// reconcile discards the cached handle and builds a new one from the catalogue.
// A handle that fails to connect is never cached.
func (s *resolvingStrategy) reconcile(ctx context.Context, p *Provider) (repository.Handle, error) {
	if p.handle != nil {
		_ = p.disconnect(p.handle)
		p.handle = nil
	}

	selector := p.settings.Selector
	if s.source == nil {
		return nil, fmt.Errorf("repository %q: %w: no metadata source configured", selector, repository.ErrMetadataRead)
	}
	if err := s.source.ReadData(); err != nil {
		// Lookups still run against the last catalogue that was read successfully.
		p.telemetry.IncFailure(p.label(), telemetry.StageMetadata)
		p.logger.Debug().Err(err).Str("selector", selector).Msg("could not read repository metadata")
	}

	rec, ok := s.source.FindByName(selector)
	if !ok {
		return nil, fmt.Errorf("repository %q: %w", selector, repository.ErrNotFound)
	}

	if s.loader == nil {
		return nil, fmt.Errorf("repository %q: %w: no loader configured", rec.Name, repository.ErrLoad)
	}
	handle, err := s.loader.Load(rec)
	if err != nil {
		if !errors.Is(err, repository.ErrLoad) {
			err = fmt.Errorf("repository %q: %w: %w", rec.Name, repository.ErrLoad, err)
		}
		return nil, err
	}
	if handle == nil {
		return nil, fmt.Errorf("repository %q: %w: loader returned no handle", rec.Name, repository.ErrLoad)
	}
	if err := handle.Init(rec); err != nil {
		return nil, fmt.Errorf("repository %q: %w: init: %w", rec.Name, repository.ErrLoad, err)
	}

	p.telemetry.IncConnectAttempt(p.label())
	if err := handle.Connect(ctx, p.settings.Username, p.settings.Password); err != nil {
		if handle.IsConnected() {
			_ = handle.Disconnect()
		}
		return nil, fmt.Errorf("repository %q: %w: %w", rec.Name, repository.ErrConnect, err)
	}
	p.handle = handle
	return handle, nil
}

func (*resolvingStrategy) reset(p *Provider) {
	_ = p.disconnect(p.handle)
	p.handle = nil
	p.dirty = true
}

type suppliedStrategy struct{}

func (suppliedStrategy) kind() Strategy { return StrategySupplied }

// reconcile reconnects the supplied handle in place. On failure the handle is
// kept and the provider stays dirty so the next access retries.
func (suppliedStrategy) reconcile(ctx context.Context, p *Provider) (repository.Handle, error) {
	handle := p.handle
	if handle == nil {
		return nil, fmt.Errorf("repository %q: %w", p.settings.Selector, repository.ErrNoHandle)
	}
	_ = p.disconnect(handle)

	p.telemetry.IncConnectAttempt(p.label())
	if err := handle.Connect(ctx, p.settings.Username, p.settings.Password); err != nil {
		return nil, fmt.Errorf("repository %s: %w: %w", identityOf(handle), repository.ErrConnect, err)
	}
	return handle, nil
}

func (suppliedStrategy) reset(p *Provider) {
	p.dirty = true
}
