// Package forward clones inbound requests and sends them to the legacy and
// replacement backends concurrently.
package forward

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"nocturne-hq/parity/pkg/analysis"
)

// Observer receives per-leg and cache events. The metrics collector implements it.
type Observer interface {
	ObserveLeg(target string, elapsed time.Duration, failed bool)
	ObserveCache(hit bool)
}

// Forwarder owns one client per target and an optional response cache.
type Forwarder struct {
	legacy      *Client
	replacement *Client
	cache       *ResponseCache
	observer    Observer
}

// NewForwarder creates a forwarder. cache and observer may be nil.
func NewForwarder(legacy, replacement *Client, cache *ResponseCache, observer Observer) *Forwarder {
	return &Forwarder{
		legacy:      legacy,
		replacement: replacement,
		cache:       cache,
		observer:    observer,
	}
}

// Client returns the client for a target.
func (f *Forwarder) Client(target analysis.Target) *Client {
	if target == analysis.TargetLegacy {
		return f.legacy
	}
	return f.replacement
}

// Cache returns the response cache, or nil when caching is disabled.
func (f *Forwarder) Cache() *ResponseCache {
	return f.cache
}

// Forward sends one leg fresh. Successful idempotent outcomes are written to
// the cache for later replays.
func (f *Forwarder) Forward(ctx context.Context, req *ClonedRequest, target analysis.Target) *analysis.ForwardOutcome {
	outcome := f.Client(target).Forward(ctx, req)
	if f.observer != nil {
		f.observer.ObserveLeg(string(target), outcome.Elapsed, !outcome.Succeeded())
	}
	if f.cache != nil && outcome.Succeeded() && outcome.Status() < 500 {
		f.cache.Put(NewFingerprint(req), target, outcome, 0)
	}
	return outcome
}

// ForwardCached serves an idempotent replay leg from the cache when a fresh
// entry exists, otherwise forwards it.
func (f *Forwarder) ForwardCached(ctx context.Context, req *ClonedRequest, target analysis.Target) *analysis.ForwardOutcome {
	if f.cache != nil && IsIdempotent(req.Method) {
		outcome, ok := f.cache.Get(NewFingerprint(req), target)
		if f.observer != nil {
			f.observer.ObserveCache(ok)
		}
		if ok {
			return outcome
		}
	}
	return f.Forward(ctx, req, target)
}

// Flight is a pair of in-progress legs.
type Flight struct {
	group *errgroup.Group
	legs  map[analysis.Target]*leg
}

type leg struct {
	done    chan struct{}
	outcome *analysis.ForwardOutcome
}

// Dispatch starts both legs concurrently. The legs run on a context detached
// from ctx's cancellation so a client disconnect does not abort them.
func (f *Forwarder) Dispatch(ctx context.Context, req *ClonedRequest) *Flight {
	return f.dispatch(ctx, req, f.Forward)
}

// DispatchReplay is Dispatch for replays: idempotent legs may be served from cache.
func (f *Forwarder) DispatchReplay(ctx context.Context, req *ClonedRequest) *Flight {
	return f.dispatch(ctx, req, f.ForwardCached)
}

func (f *Forwarder) dispatch(ctx context.Context, req *ClonedRequest, send func(context.Context, *ClonedRequest, analysis.Target) *analysis.ForwardOutcome) *Flight {
	base := context.WithoutCancel(ctx)
	fl := &Flight{
		group: &errgroup.Group{},
		legs: map[analysis.Target]*leg{
			analysis.TargetLegacy:      {done: make(chan struct{})},
			analysis.TargetReplacement: {done: make(chan struct{})},
		},
	}

	for target, l := range fl.legs {
		fl.group.Go(func() error {
			defer close(l.done)
			l.outcome = send(base, req, target)
			return nil
		})
	}
	return fl
}

// Await blocks until the given leg settles.
func (fl *Flight) Await(target analysis.Target) *analysis.ForwardOutcome {
	l := fl.legs[target]
	<-l.done
	return l.outcome
}

// Settle waits for both legs and returns them.
func (fl *Flight) Settle() (legacy, replacement *analysis.ForwardOutcome) {
	_ = fl.group.Wait()
	return fl.legs[analysis.TargetLegacy].outcome, fl.legs[analysis.TargetReplacement].outcome
}

// Close releases idle connections and stops the cache sweeper.
func (f *Forwarder) Close() {
	f.legacy.Close()
	f.replacement.Close()
	if f.cache != nil {
		f.cache.Close()
	}
}
