// Package dnspool implements the DNS resolver pool (C7): a
// bounded-concurrency hostname resolver with a wait queue, feeding results
// back into the hostile-IP registry. Grounded on WorkerService's do_lookup
// / lookup_done / lkps_in_progress in original_source/blk_wk_msg.py; the
// admission-control formula and queue-depth bookkeeping there are kept
// exactly, reshaped from Twisted's deferLater callback chain into a
// goroutine-per-lookup model using time.AfterFunc for the retry delay.
package dnspool

import (
	"context"
	"log"
	"net"
	"net/netip"
	"sync"
	"time"
)

// FieldSep joins a resolved hostname onto the caller-supplied description,
// matching the source's cfg.SEP.
const FieldSep = " | "

// Merger is the subset of the registry's API the pool needs to deliver a
// resolved IP. *registry.Registry satisfies this directly.
type Merger interface {
	Insert(ip netip.Addr, desc, asn, cc, org string) error
}

// Resolver is the subset of *net.Resolver the pool depends on, narrowed so
// tests can substitute a fake lookup table instead of hitting real DNS.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Pool bounds DNS resolution concurrency to MaxInFlight, queuing the
// overflow and retrying each queued lookup after a delay that grows with
// queue depth.
type Pool struct {
	ctx         context.Context
	resolver    Resolver
	merger      Merger
	maxInFlight int

	mu       sync.Mutex
	inFlight int
	queued   int
	wg       sync.WaitGroup
}

// New returns a Pool bound to ctx; resolution calls are abandoned once ctx
// is cancelled. A nil resolver uses net.DefaultResolver.
func New(ctx context.Context, maxInFlight int, resolver Resolver, merger Merger) *Pool {
	if maxInFlight <= 0 {
		maxInFlight = 30
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Pool{
		ctx:         ctx,
		resolver:    resolver,
		merger:      merger,
		maxInFlight: maxInFlight,
	}
}

// Schedule requests resolution of name. It returns immediately: the lookup
// either starts right away or is placed on the wait queue and retried
// later. desc and org are carried through to the eventual registry insert,
// which is why a blocklist hostname line can create a brand-new registry
// record even though the whois enrichment path cannot — org flows with the
// request.
func (p *Pool) Schedule(name, desc, org string) {
	p.schedule(name, desc, org, false)
}

func (p *Pool) schedule(name, desc, org string, isRetry bool) {
	p.mu.Lock()
	if isRetry && p.queued > 0 {
		p.queued--
	}

	if p.inFlight < p.maxInFlight {
		p.inFlight++
		p.mu.Unlock()
		p.wg.Add(1)
		go p.resolve(name, desc, org)
		return
	}

	p.queued++
	// (maxInFlight + queued) / maxInFlight seconds, same shape as the
	// source's (self.max_x + self.num_wait) / self.max_x deferLater delay.
	delaySeconds := float64(p.maxInFlight+p.queued) / float64(p.maxInFlight)
	delay := time.Duration(delaySeconds * float64(time.Second))
	p.mu.Unlock()

	time.AfterFunc(delay, func() {
		p.schedule(name, desc, org, true)
	})
}

func (p *Pool) resolve(name, desc, org string) {
	defer p.wg.Done()
	// The in-flight slot is released only after the merge below, so Busy
	// stays true until the resolved IP is visible in the registry.
	defer func() {
		p.mu.Lock()
		if p.inFlight > 0 {
			p.inFlight--
		}
		p.mu.Unlock()
	}()

	ips, err := p.resolver.LookupHost(p.ctx, name)

	if err != nil {
		log.Printf("WARN: dnspool: lookup failed for %s: %v", name, err)
		return
	}
	if len(ips) == 0 {
		log.Printf("WARN: dnspool: no addresses for %s", name)
		return
	}

	var resolved netip.Addr
	found := false
	for _, raw := range ips {
		addr, perr := netip.ParseAddr(raw)
		if perr == nil && addr.Is4() {
			resolved = addr
			found = true
			break
		}
	}
	if !found {
		log.Printf("WARN: dnspool: %s resolved to no IPv4 address", name)
		return
	}

	fullDesc := name
	if desc != "" {
		fullDesc = name + FieldSep + desc
	}
	if err := p.merger.Insert(resolved, fullDesc, "", "", org); err != nil {
		log.Printf("WARN: dnspool: merge failed for %s (%s): %v", name, resolved, err)
	}
}

// Busy reports whether any lookup is in flight or waiting in the queue.
// The orchestrator polls this every cymruDelay seconds before proceeding to
// the bulk-whois phase.
func (p *Pool) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight > 0 || p.queued > 0
}
