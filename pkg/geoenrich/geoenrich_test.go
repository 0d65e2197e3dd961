package geoenrich

import (
	"fmt"
	"net/netip"
	"testing"

	"asnwatch/pkg/model"
)

type fakeCoder struct{ codes map[string]string }

func (f fakeCoder) CountryCode(ip netip.Addr) (string, error) {
	if c, ok := f.codes[ip.String()]; ok {
		return c, nil
	}
	return "", fmt.Errorf("no country for %s", ip)
}

type fakeOrger struct{ orgs map[string]string }

func (f fakeOrger) ASNOrg(ip netip.Addr) (string, bool) {
	o, ok := f.orgs[ip.String()]
	return o, ok
}

type fakeMerger struct {
	records map[netip.Addr]*model.HostileRecord
	inserts []netip.Addr
}

func newFakeMerger(known ...netip.Addr) *fakeMerger {
	m := &fakeMerger{records: make(map[netip.Addr]*model.HostileRecord)}
	for _, ip := range known {
		m.records[ip] = model.NewHostileRecord(ip)
	}
	return m
}

func (f *fakeMerger) Lookup(ip netip.Addr) (*model.HostileRecord, bool) {
	rec, ok := f.records[ip]
	return rec, ok
}

func (f *fakeMerger) Insert(ip netip.Addr, desc, asn, cc, org string) error {
	f.inserts = append(f.inserts, ip)
	rec := f.records[ip]
	if cc != "" {
		rec.CCs[cc] = struct{}{}
	}
	if desc != "" {
		rec.Descs[desc] = struct{}{}
	}
	return nil
}

func TestEnrich_SkipsUnknownIPs(t *testing.T) {
	merger := newFakeMerger() // nothing known
	coder := fakeCoder{codes: map[string]string{"198.51.100.9": "US"}}
	orger := fakeOrger{}

	enrich(coder, orger, merger, []netip.Addr{netip.MustParseAddr("198.51.100.9")})

	if len(merger.inserts) != 0 {
		t.Errorf("expected no inserts for an IP without an existing record, got %v", merger.inserts)
	}
}

func TestEnrich_MergesCountryAndOrg(t *testing.T) {
	ip := netip.MustParseAddr("198.51.100.9")
	merger := newFakeMerger(ip)
	coder := fakeCoder{codes: map[string]string{"198.51.100.9": "US"}}
	orger := fakeOrger{orgs: map[string]string{"198.51.100.9": "Example Networks"}}

	enrich(coder, orger, merger, []netip.Addr{ip})

	rec, _ := merger.Lookup(ip)
	if _, ok := rec.CCs["US"]; !ok {
		t.Errorf("expected US merged into CCs, got %v", rec.CCs)
	}
	if _, ok := rec.Descs["Example Networks"]; !ok {
		t.Errorf("expected ASN org folded into Descs, got %v", rec.Descs)
	}
}

func TestEnrich_MissingCountrySkipsWithoutError(t *testing.T) {
	ip := netip.MustParseAddr("203.0.113.5")
	merger := newFakeMerger(ip)
	coder := fakeCoder{} // no entries, lookups fail
	orger := fakeOrger{}

	enrich(coder, orger, merger, []netip.Addr{ip})

	if len(merger.inserts) != 0 {
		t.Errorf("expected no insert when country lookup fails, got %v", merger.inserts)
	}
}
