package adapter

import (
	"context"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lanwatch/internal/domain"
)

// Hostname resolution defaults
const (
	DefaultResolveTimeout = 500 * time.Millisecond
	DefaultResolveWorkers = 20
)

// AddrResolver is the reverse lookup half of net.Resolver
type AddrResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// HostnameResolver labels observations through reverse DNS
type HostnameResolver struct {
	resolver AddrResolver
	timeout  time.Duration
	workers  int
}

// NewHostnameResolver creates a resolver backed by the system resolver.
// Non-positive arguments fall back to the defaults.
func NewHostnameResolver(timeout time.Duration, workers int) *HostnameResolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	if workers <= 0 {
		workers = DefaultResolveWorkers
	}
	return &HostnameResolver{
		resolver: net.DefaultResolver,
		timeout:  timeout,
		workers:  workers,
	}
}

// Lookup returns the first PTR name for addr, or the unknown label
func (r *HostnameResolver) Lookup(ctx context.Context, addr string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.resolver.LookupAddr(ctx, addr)
	if err != nil || len(names) == 0 {
		return domain.UnknownLabel
	}
	name := strings.TrimSuffix(names[0], ".")
	if name == "" {
		return domain.UnknownLabel
	}
	return name
}

// Fill resolves every observation that has no label yet. Lookups run
// concurrently; each worker writes only its own slot.
func (r *HostnameResolver) Fill(ctx context.Context, devices []domain.Observation) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i := range devices {
		if devices[i].Label != "" {
			continue
		}
		g.Go(func() error {
			devices[i].Label = r.Lookup(gctx, devices[i].Address)
			return nil
		})
	}
	_ = g.Wait()
}
