// Package registry implements the hostile-IP registry (C3): a mergeable
// mapping from IP to an attribute record, populated concurrently from
// blocklist parsers, asynchronous DNS resolutions, and bulk-whois
// responses. Grounded on the Python hostileIPs class (insert_ip,
// updt_whois, list_grp) in original_source/blk_ipdict.py, reshaped around
// Go sets (map[string]struct{}) per the recommendation in SPEC_FULL.md §9
// to store actual sets and serialize only at report time.
package registry

import (
	"log"
	"net/netip"
	"sort"
	"strings"
	"sync"

	"asnwatch/pkg/model"
)

// Registry is the hostile-IP map for one ingest cycle. Safe for concurrent
// use: it is written from blocklist parsing, DNS callbacks, and the
// bulk-whois merger, all of which may run as distinct goroutines within a
// phase, though the orchestrator never reads it until those phases settle.
type Registry struct {
	mu      sync.Mutex
	records map[netip.Addr]*model.HostileRecord
}

// New returns an empty registry. Hostile-IP registries are never mutated
// across cycles — a fresh one is created at the start of each ingest cycle.
func New() *Registry {
	return &Registry{records: make(map[netip.Addr]*model.HostileRecord)}
}

// Insert adds or merges a record for ip. If ip is new, org must be
// non-empty (the record is only created when sourced from, or derived
// from, a blocklist); otherwise the insert is rejected with
// model.ErrInvalidRecord. On an existing record, each non-empty field is
// unioned into the corresponding set.
func (r *Registry) Insert(ip netip.Addr, desc, asn, cc, org string) error {
	desc, asn, cc, org = strings.TrimSpace(desc), strings.TrimSpace(asn), strings.TrimSpace(cc), strings.TrimSpace(org)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[ip]
	if !exists {
		if org == "" {
			log.Printf("WARN: rejecting registry insert for %s: no org and no existing record", ip)
			return model.ErrInvalidRecord
		}
		rec = model.NewHostileRecord(ip)
		r.records[ip] = rec
	}

	addTo(rec.Descs, desc)
	addTo(rec.ASNs, asn)
	addTo(rec.CCs, cc)
	addTo(rec.Orgs, org)
	return nil
}

func addTo(set map[string]struct{}, v string) {
	if v != "" {
		set[v] = struct{}{}
	}
}

// Lookup returns the record for ip, if any.
func (r *Registry) Lookup(ip netip.Addr) (*model.HostileRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[ip]
	return rec, ok
}

// Enumerate returns every record currently in the registry, sorted by IP so
// that callers building a report see a stable order across runs (map
// iteration order is otherwise randomized per process, which spec.md §8's
// "cycle determinism, modulo I/O" property rules out).
func (r *Registry) Enumerate() []*model.HostileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.HostileRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sortByIP(out)
	return out
}

// Filter describes an enumeration filter: a non-empty field must be a
// member of the corresponding set on a candidate record.
type Filter struct {
	ASN string
	Org string
	CC  string
}

// EnumerateFiltered returns every record matching f, sorted by IP (see
// Enumerate).  A zero-value field in f is not applied.
func (r *Registry) EnumerateFiltered(f Filter) []*model.HostileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.HostileRecord
	for _, rec := range r.records {
		if f.ASN != "" {
			if _, ok := rec.ASNs[f.ASN]; !ok {
				continue
			}
		}
		if f.Org != "" {
			if _, ok := rec.Orgs[f.Org]; !ok {
				continue
			}
		}
		if f.CC != "" {
			if _, ok := rec.CCs[f.CC]; !ok {
				continue
			}
		}
		out = append(out, rec)
	}
	sortByIP(out)
	return out
}

func sortByIP(recs []*model.HostileRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].IP.Compare(recs[j].IP) < 0
	})
}

// MergeWhoisLine parses a pipe-delimited "asn | ip | cc | desc" line and
// merges it into the record for ip if one already exists. A line
// referencing an IP not already present is logged and dropped: the
// bulk-whois service is an enrichment step, not the source of truth for
// which IPs are hostile.
func (r *Registry) MergeWhoisLine(line string) error {
	fields := strings.Split(line, "|")
	if len(fields) != 4 {
		log.Printf("WARN: malformed whois line, want 4 pipe-delimited fields: %q", line)
		return model.ErrInvalidRecord
	}

	asn := strings.TrimSpace(fields[0])
	ipStr := strings.TrimSpace(fields[1])
	cc := strings.TrimSpace(fields[2])
	desc := strings.TrimSpace(fields[3])

	ip, err := netip.ParseAddr(ipStr)
	if err != nil || !ip.Is4() {
		log.Printf("WARN: whois line has non-IPv4 address %q: %v", ipStr, err)
		return model.ErrInvalidRecord
	}

	if _, ok := r.Lookup(ip); !ok {
		log.Printf("WARN: whois returned %s which is not in the registry, dropping", ip)
		return model.ErrUnknownIP
	}

	return r.Insert(ip, desc, asn, cc, "")
}

// Clear empties the registry in place.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[netip.Addr]*model.HostileRecord)
}

// Len reports the number of distinct IPs currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
