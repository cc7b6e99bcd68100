package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"lanwatch/internal/domain"
)

// ChainDiscovery tries each source in order and keeps the first success
type ChainDiscovery struct {
	sources   []Source
	resolver  *HostnameResolver
	localHost LocalHostFunc
	logger    zerolog.Logger
}

// ChainOption is a functional option for configuring ChainDiscovery
type ChainOption func(*ChainDiscovery)

// WithResolver sets the resolver used for unlabeled observations.
// A nil resolver leaves labels as the unknown label.
func WithResolver(r *HostnameResolver) ChainOption {
	return func(c *ChainDiscovery) {
		c.resolver = r
	}
}

// WithLocalDevice sets how the scanning machine is found. A nil func skips
// adding it.
func WithLocalDevice(fn LocalHostFunc) ChainOption {
	return func(c *ChainDiscovery) {
		c.localHost = fn
	}
}

// NewChainDiscovery creates a fallback chain over sources
func NewChainDiscovery(sources []Source, logger zerolog.Logger, opts ...ChainOption) *ChainDiscovery {
	c := &ChainDiscovery{
		sources:   sources,
		resolver:  NewHostnameResolver(DefaultResolveTimeout, DefaultResolveWorkers),
		localHost: DetectLocalHost,
		logger:    logger.With().Str("component", "discovery").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scan runs the chain. It fails with ErrNoDiscovery only when every source
// failed.
func (c *ChainDiscovery) Scan(ctx context.Context) (*domain.Discovery, error) {
	var errs []error

	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		devices, err := src.Discover(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Str("method", src.Name()).Msg("discovery source failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		discovery := &domain.Discovery{Method: src.Name(), Devices: devices}
		c.label(ctx, discovery)
		c.addLocal(ctx, discovery)

		c.logger.Info().
			Str("method", discovery.Method).
			Int("devices", len(discovery.Devices)).
			Msg("discovery complete")
		return discovery, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoDiscovery, errors.Join(errs...))
}

func (c *ChainDiscovery) label(ctx context.Context, d *domain.Discovery) {
	if c.resolver != nil {
		c.resolver.Fill(ctx, d.Devices)
	}
	for i := range d.Devices {
		if d.Devices[i].Label == "" {
			d.Devices[i].Label = domain.UnknownLabel
		}
	}
}

// addLocal puts the scanning machine first when the source missed it.
// A machine never sees itself in its own ARP cache.
func (c *ChainDiscovery) addLocal(ctx context.Context, d *domain.Discovery) {
	if c.localHost == nil {
		return
	}
	local, err := c.localHost(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("local host not detected")
		return
	}
	for _, obs := range d.Devices {
		if obs.Address == local.Address {
			return
		}
	}
	d.Devices = append([]domain.Observation{local.Observation()}, d.Devices...)
}
