package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
blocklist_sources:
  - org: dshield
    url: https://example.com/dshield.txt
monitored_asns: ["64500", "64501"]
user_agent: asnwatchd/1.0
route_servers:
  - host: route-views.example.net
    port: 23
sanity_ip: 10.0.0.1
sanity_asn: "64500"
intervals:
  refresh_blocklist: 30m
  refresh_route_server: 6h
  ip_prob_max: 5
  ip_prob_retry: 4m
throttles:
  dns_max_in_flight: 30
  nudge_interval: 2s
  prompt_countdown: 2
  whois_spacing: 3s
  whois_batch_cap: 20
  cymru_delay: 5m
whois_host: whois.example.net
whois_port: 43
debug:
  subsystems: ["rteserv"]
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asnwatch.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write sample config: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(f.BlocklistSources) != 1 || f.BlocklistSources[0].Org != "dshield" {
		t.Errorf("BlocklistSources = %+v", f.BlocklistSources)
	}
	if f.Intervals.RefreshBlk != 30*time.Minute {
		t.Errorf("RefreshBlk = %v, want 30m", f.Intervals.RefreshBlk)
	}
	if f.RecordSep != "\r\n" {
		t.Errorf("RecordSep default not applied: %q", f.RecordSep)
	}
	if !f.Debug.Enabled("rteserv") {
		t.Error("expected rteserv subsystem debug enabled")
	}
	if f.Debug.Enabled("whois") {
		t.Error("whois subsystem debug should not be enabled")
	}

	addr, err := f.SanityIPAddr()
	if err != nil {
		t.Fatalf("SanityIPAddr: %v", err)
	}
	if addr.String() != "10.0.0.1" {
		t.Errorf("SanityIPAddr = %v", addr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/asnwatch.yaml"); err == nil {
		t.Error("expected error loading a missing file")
	}
}
