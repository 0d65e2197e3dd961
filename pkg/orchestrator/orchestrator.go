// Package orchestrator implements the ingest-and-correlate orchestrator
// (C9): it owns the current prefix index and hostile-IP registry, schedules
// blocklist fetches, DNS resolution, and the bulk-whois roundtrip, and
// sequences them so correlation only runs when its inputs are coherent.
// Grounded on blk_main.py's blklst_Main/cymru_chk/cymru_done and
// blk_state.py's BlkState (which this reshapes from file-scope globals into
// explicit struct fields, per SPEC_FULL.md's design notes).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"sync"
	"time"

	"asnwatch/pkg/blocklist"
	"asnwatch/pkg/dnspool"
	"asnwatch/pkg/model"
	"asnwatch/pkg/prefixindex"
	"asnwatch/pkg/registry"
	"asnwatch/pkg/routeserver"
	"asnwatch/pkg/whois"
)

// Enricher is the optional GeoIP enrichment collaborator (pkg/geoenrich).
// Left nil, RunIngestCycle skips enrichment entirely.
type Enricher interface {
	Enrich(merger interface {
		Lookup(ip netip.Addr) (*model.HostileRecord, bool)
		Insert(ip netip.Addr, desc, asn, cc, org string) error
	}, ips []netip.Addr)
}

// Reporter is the out-of-scope external collaborator that delivers the
// final status string, e.g. over a chat transport. Only its interface is
// specified here.
type Reporter interface {
	Emit(report string) error
}

// RouteServerHost is one rotation entry: a route-server hostname and port.
// Every host is queried with the Config's MonitoredASNs and CmdTemplate.
type RouteServerHost struct {
	Host string
	Port int
}

// Config collects every tunable named in §6 of the monitoring
// specification: blocklist sources, monitored ASNs, route-server rotation,
// sanity pairing, refresh/retry intervals, and throttles.
type Config struct {
	BlocklistSources []blocklist.Source
	MonitoredASNs    []string
	UserAgent        string

	RouteServers    []RouteServerHost
	CmdTemplate     string
	NudgeInterval   time.Duration
	PromptCountdown int

	SanityIP  netip.Addr
	SanityASN string

	RefreshBlkInterval time.Duration
	RefreshIPInterval  time.Duration
	IPProbRetry        time.Duration
	IPProbMax          int

	DNSMaxInFlight int
	CymruDelay     time.Duration

	WhoisHost    string
	WhoisPort    int
	WhoisSpacing time.Duration
	CymruMax     int

	RecordDelim string // default "\r\n"

	Enricher Enricher // optional; nil skips GeoIP enrichment
}

func (c *Config) setDefaults() {
	if c.CmdTemplate == "" {
		c.CmdTemplate = "show ip bgp regexp _%s$"
	}
	if c.NudgeInterval == 0 {
		c.NudgeInterval = 2 * time.Second
	}
	if c.PromptCountdown == 0 {
		c.PromptCountdown = 2
	}
	if c.RefreshBlkInterval == 0 {
		c.RefreshBlkInterval = 30 * time.Minute
	}
	if c.RefreshIPInterval == 0 {
		c.RefreshIPInterval = 6 * time.Hour
	}
	if c.IPProbRetry == 0 {
		c.IPProbRetry = 4 * time.Minute
	}
	if c.IPProbMax == 0 {
		c.IPProbMax = 5
	}
	if c.DNSMaxInFlight == 0 {
		c.DNSMaxInFlight = 30
	}
	if c.CymruDelay == 0 {
		c.CymruDelay = 5 * time.Minute
	}
	if c.WhoisPort == 0 {
		c.WhoisPort = 43
	}
	if c.WhoisSpacing == 0 {
		c.WhoisSpacing = 3 * time.Second
	}
	if c.CymruMax == 0 {
		c.CymruMax = 20
	}
	if c.RecordDelim == "" {
		c.RecordDelim = "\r\n"
	}
}

// Orchestrator is the long-lived value holding every piece of
// process-global state the source kept in BlkState and WorkerService: the
// current prefix index, the rotation pointer, and the sanity failure
// counter are explicit fields here instead of module globals.
type Orchestrator struct {
	cfg          Config
	reporter     Reporter
	stats        *statsRing
	whoisLimiter *whois.Limiter

	mu          sync.Mutex
	tree        *prefixindex.Tree
	rteIdx      int
	ipProbCount int
}

// New returns an Orchestrator with no prefix index yet built; the first
// ingest cycle's sanity check will fail until RefreshRouteServer succeeds
// at least once, exactly as the source's tree starts out nil.
func New(cfg Config, reporter Reporter) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		cfg:          cfg,
		reporter:     reporter,
		stats:        newStatsRing(20),
		whoisLimiter: whois.NewLimiter(cfg.WhoisSpacing),
	}
}

// currentTree returns the orchestrator's prefix index under lock.
func (o *Orchestrator) currentTree() *prefixindex.Tree {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tree
}

// nextRouteServer advances the rotation pointer and returns the host it now
// points to, wrapping around, matching BlkState.get_next_rte_srv.
func (o *Orchestrator) nextRouteServer() (RouteServerHost, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.cfg.RouteServers) == 0 {
		return RouteServerHost{}, fmt.Errorf("orchestrator: no route servers configured")
	}
	o.rteIdx++
	if o.rteIdx >= len(o.cfg.RouteServers) {
		o.rteIdx = 0
		log.Printf("INFO: orchestrator: route-server rotation wrapped back to %s", o.cfg.RouteServers[0].Host)
	}
	return o.cfg.RouteServers[o.rteIdx], nil
}

// RefreshRouteServer drives C5 against the next host in the rotation and
// installs the resulting prefix index only on a clean session end — a
// partially built index is never swapped in.
func (o *Orchestrator) RefreshRouteServer(ctx context.Context) error {
	host, err := o.nextRouteServer()
	if err != nil {
		return err
	}

	log.Printf("INFO: orchestrator: refreshing prefix index from %s", host.Host)
	tree, err := routeserver.Run(ctx, routeserver.Config{
		Host:            host.Host,
		Port:            host.Port,
		ASNs:            o.cfg.MonitoredASNs,
		CmdTemplate:     o.cfg.CmdTemplate,
		NudgeInterval:   o.cfg.NudgeInterval,
		PromptCountdown: o.cfg.PromptCountdown,
	})
	if err != nil {
		log.Printf("WARN: orchestrator: route-server refresh from %s failed: %v", host.Host, err)
		return err
	}

	o.mu.Lock()
	o.tree = tree
	o.mu.Unlock()
	log.Printf("INFO: orchestrator: prefix index replaced, height %d", tree.Height())
	return nil
}

// sanityCheck looks up cfg.SanityIP in the current prefix index and
// requires a match against cfg.SanityASN.
func (o *Orchestrator) sanityCheck() bool {
	tree := o.currentTree()
	if tree == nil {
		return false
	}
	asn, ok := tree.Lookup(o.cfg.SanityIP)
	return ok && asn == o.cfg.SanityASN
}

// ingestSink adapts a registry and a DNS pool into blocklist.Sink: a direct
// IP is inserted immediately, a hostname is scheduled for resolution.
type ingestSink struct {
	reg  *registry.Registry
	pool *dnspool.Pool
}

func (s *ingestSink) Insert(ip netip.Addr, desc, org string) error {
	return s.reg.Insert(ip, desc, "", "", org)
}

func (s *ingestSink) ScheduleDNS(hostname, desc, org string) {
	s.pool.Schedule(hostname, desc, org)
}

// RunIngestCycle executes the seven-step sequence in §4.9: sanity check,
// fresh registry, blocklist fan-out, DNS quiescence, whois cross-validation,
// and report emission. It returns an error when the sanity check fails (a
// retry is pending, wrapping model.ErrSanityMismatch; the forced rebuild
// failed; or the check still fails after the rebuild) and when the
// reporter's Emit fails. Every other failure (a blocklist fetch, a DNS
// lookup, the whois round trip) is logged and the cycle degrades
// gracefully.
func (o *Orchestrator) RunIngestCycle(ctx context.Context) error {
	stats := model.Stats{CycleStart: time.Now()}

	if !o.sanityCheck() {
		o.mu.Lock()
		o.ipProbCount++
		failures := o.ipProbCount
		exceeded := o.ipProbCount >= o.cfg.IPProbMax
		if exceeded {
			o.ipProbCount = 0
		}
		o.mu.Unlock()

		stats.SanityFailures++
		log.Printf("WARN: orchestrator: sanity check failed (ip=%s, want asn=%s), failure %d of %d", o.cfg.SanityIP, o.cfg.SanityASN, failures, o.cfg.IPProbMax)

		if !exceeded {
			o.stats.record(stats)
			return fmt.Errorf("orchestrator: sanity check failed, retry in %s: %w", o.cfg.IPProbRetry, model.ErrSanityMismatch)
		}

		log.Printf("WARN: orchestrator: sanity check failed %d times, forcing route-server refresh", o.cfg.IPProbMax)
		if err := o.RefreshRouteServer(ctx); err != nil {
			o.stats.record(stats)
			return fmt.Errorf("orchestrator: rebuild after sanity failures: %w", err)
		}
		if !o.sanityCheck() {
			o.stats.record(stats)
			return fmt.Errorf("orchestrator: sanity check still failing after rebuild")
		}
	}

	reg := registry.New()
	pool := dnspool.New(ctx, o.cfg.DNSMaxInFlight, nil, reg)
	sink := &ingestSink{reg: reg, pool: pool}

	fetcher := blocklist.NewFetcher(o.cfg.UserAgent)
	fetcher.FetchAll(ctx, o.cfg.BlocklistSources, sink)

	o.waitForDNSQuiescence(ctx, pool)

	tree := o.currentTree()
	candidates := filterCandidates(reg, tree)
	stats.WhoisCandidates = len(candidates)

	if len(candidates) == 0 {
		log.Printf("INFO: orchestrator: no hostile IPs found in monitored ASNs this cycle")
		stats.ReportEmpty = true
		o.stats.record(stats)
		return o.reporter.Emit("No hostile IPs found in ASNs of interest")
	}

	if len(candidates) > o.cfg.CymruMax {
		log.Printf("WARN: orchestrator: %d whois candidates exceed cap %d, truncating", len(candidates), o.cfg.CymruMax)
		candidates = candidates[:o.cfg.CymruMax]
	}

	ips := make([]string, len(candidates))
	for i, ip := range candidates {
		ips[i] = ip.String()
	}
	if err := whois.Run(ctx, whois.Config{Host: o.cfg.WhoisHost, Port: o.cfg.WhoisPort}, o.whoisLimiter, ips, reg); err != nil {
		log.Printf("WARN: orchestrator: bulk-whois round trip failed, proceeding with unvalidated data: %v", err)
	} else {
		stats.WhoisMerged = len(ips)
	}

	if o.cfg.Enricher != nil {
		o.cfg.Enricher.Enrich(reg, candidates)
	}

	report := buildReport(reg, o.cfg.MonitoredASNs, o.cfg.RecordDelim)
	o.stats.record(stats)
	return o.reporter.Emit(report)
}

// waitForDNSQuiescence polls pool.Busy every cfg.CymruDelay until it
// reports false or ctx is done, matching cymru_chk's self-rescheduling
// wait loop collapsed into a blocking poll.
func (o *Orchestrator) waitForDNSQuiescence(ctx context.Context, pool *dnspool.Pool) {
	if !pool.Busy() {
		return
	}
	ticker := time.NewTicker(o.cfg.CymruDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !pool.Busy() {
				return
			}
		}
	}
}

// filterCandidates enumerates reg and keeps only IPs the prefix index
// places in a monitored ASN's announced space.
func filterCandidates(reg *registry.Registry, tree *prefixindex.Tree) []netip.Addr {
	if tree == nil {
		return nil
	}
	var out []netip.Addr
	for _, rec := range reg.Enumerate() {
		if _, ok := tree.Lookup(rec.IP); ok {
			out = append(out, rec.IP)
		}
	}
	return out
}

// RecentStats returns the most recently recorded cycle statistics, oldest
// first, for operator diagnostics.
func (o *Orchestrator) RecentStats() ([]model.Stats, error) {
	return o.stats.recent()
}

// Run starts the two periodic timers described in §4.9 and blocks until ctx
// is cancelled: a route-server refresh every RefreshIPInterval, and an
// ingest cycle every RefreshBlkInterval. A failed ingest cycle reschedules
// itself after IPProbRetry when the failure was a sanity-check retry;
// otherwise the next regular tick runs as usual.
func (o *Orchestrator) Run(ctx context.Context) {
	if err := o.RefreshRouteServer(ctx); err != nil {
		log.Printf("WARN: orchestrator: initial route-server refresh failed: %v", err)
	}

	rteTicker := time.NewTicker(o.cfg.RefreshIPInterval)
	defer rteTicker.Stop()
	blkTicker := time.NewTicker(o.cfg.RefreshBlkInterval)
	defer blkTicker.Stop()

	var retryC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-rteTicker.C:
			if err := o.RefreshRouteServer(ctx); err != nil {
				log.Printf("WARN: orchestrator: periodic route-server refresh failed: %v", err)
			}
			continue
		case <-blkTicker.C:
		case <-retryC:
		}
		retryC = nil
		if err := o.RunIngestCycle(ctx); err != nil {
			log.Printf("WARN: orchestrator: ingest cycle error: %v", err)
			if errors.Is(err, model.ErrSanityMismatch) {
				retryC = time.After(o.cfg.IPProbRetry)
			}
		}
	}
}
