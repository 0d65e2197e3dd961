// Package geoenrich adds a country code (and, where a second database is
// configured, an originating-network organization name) onto hostile-IP
// records that already exist in the registry. It is strictly additive: the
// specification's whois-merge rule — enrichment data for an IP not already
// present is discarded — applies here too, so this package never creates a
// registry record on its own.
//
// Grounded on the teacher's pkg/sources/maxmind Readers type, narrowed to
// the two lookups this domain needs and split across both MaxMind client
// libraries the teacher depends on: geoip2-golang for the structured
// Country record, and the lower-level maxminddb-golang reader for a
// second, optional ASN-organization database using a custom decode target.
package geoenrich

import (
	"fmt"
	"log"
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"asnwatch/pkg/model"
)

// Enricher holds open MaxMind database readers.
type Enricher struct {
	country *geoip2.Reader
	asnOrg  *maxminddb.Reader // optional
}

// Open opens the GeoLite2 Country database at countryDBPath. asnOrgDBPath
// is optional; pass "" to skip ASN-organization enrichment.
func Open(countryDBPath, asnOrgDBPath string) (*Enricher, error) {
	country, err := geoip2.Open(countryDBPath)
	if err != nil {
		return nil, fmt.Errorf("geoenrich: open country database: %w", err)
	}

	e := &Enricher{country: country}
	if asnOrgDBPath != "" {
		r, err := maxminddb.Open(asnOrgDBPath)
		if err != nil {
			country.Close()
			return nil, fmt.Errorf("geoenrich: open ASN-org database: %w", err)
		}
		e.asnOrg = r
	}
	return e, nil
}

// Close releases both database readers.
func (e *Enricher) Close() error {
	var err error
	if e.country != nil {
		err = e.country.Close()
	}
	if e.asnOrg != nil {
		if cerr := e.asnOrg.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// CountryCode returns the two-letter ISO country code for ip, if known.
func (e *Enricher) CountryCode(ip netip.Addr) (string, error) {
	record, err := e.country.Country(net.IP(ip.AsSlice()))
	if err != nil {
		return "", fmt.Errorf("geoenrich: country lookup for %s: %w", ip, err)
	}
	return record.Country.IsoCode, nil
}

type asnOrgRecord struct {
	Organization string `maxminddb:"autonomous_system_organization"`
}

// ASNOrg returns the originating network's organization name for ip, if
// the optional database is configured and has an entry.
func (e *Enricher) ASNOrg(ip netip.Addr) (string, bool) {
	if e.asnOrg == nil {
		return "", false
	}
	var rec asnOrgRecord
	if err := e.asnOrg.Lookup(net.IP(ip.AsSlice()), &rec); err != nil {
		return "", false
	}
	return rec.Organization, rec.Organization != ""
}

// Merger is the subset of the registry's API enrichment needs: a lookup to
// confirm the record already exists, and an insert to union in the new
// fields.
type Merger interface {
	Lookup(ip netip.Addr) (*model.HostileRecord, bool)
	Insert(ip netip.Addr, desc, asn, cc, org string) error
}

type countryCoder interface {
	CountryCode(ip netip.Addr) (string, error)
}

type asnOrger interface {
	ASNOrg(ip netip.Addr) (string, bool)
}

// Enrich adds a country code, and an ASN-organization hint when available,
// to every IP in ips that already has a registry record. IPs without an
// existing record are skipped rather than passed to Insert, since Insert
// would reject them anyway for carrying no description-originating org.
func (e *Enricher) Enrich(merger Merger, ips []netip.Addr) {
	enrich(e, e, merger, ips)
}

func enrich(cc countryCoder, org asnOrger, merger Merger, ips []netip.Addr) {
	for _, ip := range ips {
		if _, ok := merger.Lookup(ip); !ok {
			continue
		}
		code, err := cc.CountryCode(ip)
		if err != nil || code == "" {
			continue
		}
		// ASN-organization name, if available, is network-ownership
		// metadata rather than a blocklist source tag, so it is folded
		// into the description set instead of the org field.
		desc := ""
		if orgName, ok := org.ASNOrg(ip); ok {
			desc = orgName
		}
		if err := merger.Insert(ip, desc, "", code, ""); err != nil {
			log.Printf("WARN: geoenrich: merge failed for %s: %v", ip, err)
		}
	}
}
