package orchestrator

import (
	"context"
	"net/netip"
	"strings"
	"testing"
	"time"

	"asnwatch/pkg/model"
	"asnwatch/pkg/prefixindex"
	"asnwatch/pkg/registry"
)

type fakeReporter struct {
	reports []string
}

func (f *fakeReporter) Emit(report string) error {
	f.reports = append(f.reports, report)
	return nil
}

func mustPrefix(t *testing.T, s string) model.Prefix {
	t.Helper()
	p, err := model.ParsePrefix(s)
	if err != nil {
		t.Fatalf("ParsePrefix(%q): %v", s, err)
	}
	return p
}

func TestRunIngestCycle_SanityFailureWithoutTree(t *testing.T) {
	reporter := &fakeReporter{}
	o := New(Config{
		MonitoredASNs: []string{"64500"},
		SanityIP:      netip.MustParseAddr("10.0.0.1"),
		SanityASN:     "64500",
		IPProbMax:     5,
		IPProbRetry:   time.Millisecond,
	}, reporter)

	err := o.RunIngestCycle(context.Background())
	if err == nil {
		t.Fatal("expected sanity check failure with no prefix index built yet")
	}
	if len(reporter.reports) != 0 {
		t.Errorf("expected no report emitted on sanity failure, got %v", reporter.reports)
	}
}

func TestRunIngestCycle_NoHostileIPsReport(t *testing.T) {
	reporter := &fakeReporter{}
	o := New(Config{
		MonitoredASNs: []string{"64500"},
		SanityIP:      netip.MustParseAddr("10.0.0.1"),
		SanityASN:     "64500",
	}, reporter)

	tree := prefixindex.New()
	tree.Insert(mustPrefix(t, "10.0.0.0/24"), "64500")
	o.mu.Lock()
	o.tree = tree
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := o.RunIngestCycle(ctx); err != nil {
		t.Fatalf("RunIngestCycle: %v", err)
	}
	if len(reporter.reports) != 1 || reporter.reports[0] != "No hostile IPs found in ASNs of interest" {
		t.Errorf("reports = %v, want a single no-hostile-IPs report", reporter.reports)
	}
}

func TestFilterCandidates(t *testing.T) {
	tree := prefixindex.New()
	tree.Insert(mustPrefix(t, "10.0.0.0/24"), "64500")

	reg := registry.New()
	reg.Insert(netip.MustParseAddr("10.0.0.5"), "", "", "", "dshield")
	reg.Insert(netip.MustParseAddr("192.0.2.1"), "", "", "", "dshield")

	candidates := filterCandidates(reg, tree)
	if len(candidates) != 1 || candidates[0] != netip.MustParseAddr("10.0.0.5") {
		t.Errorf("filterCandidates = %v, want only 10.0.0.5", candidates)
	}
}

func TestBuildReport(t *testing.T) {
	reg := registry.New()
	reg.Insert(netip.MustParseAddr("10.0.0.5"), "botnet", "64500", "US", "dshield")

	report := buildReport(reg, []string{"64500"}, "\r\n")
	want := "10.0.0.5 64500 US dshield botnet"
	if report != want {
		t.Errorf("buildReport() = %q, want %q", report, want)
	}
}

// TestBuildReport_DeterministicAcrossRuns guards spec.md §8's cycle
// determinism property: the same registry contents must produce the same
// report string every time, not just by chance of map iteration order.
func TestBuildReport_DeterministicAcrossRuns(t *testing.T) {
	reg := registry.New()
	reg.Insert(netip.MustParseAddr("10.0.0.9"), "c", "64500", "US", "dshield")
	reg.Insert(netip.MustParseAddr("10.0.0.1"), "a", "64500", "US", "dshield")
	reg.Insert(netip.MustParseAddr("10.0.0.5"), "b", "64500", "US", "dshield")

	want := buildReport(reg, []string{"64500"}, "\r\n")
	for i := 0; i < 10; i++ {
		if got := buildReport(reg, []string{"64500"}, "\r\n"); got != want {
			t.Fatalf("run %d: buildReport() = %q, want %q", i, got, want)
		}
	}

	lines := strings.Split(want, "\r\n")
	wantOrder := []string{"10.0.0.1", "10.0.0.5", "10.0.0.9"}
	for i, line := range lines {
		if !strings.HasPrefix(line, wantOrder[i]+" ") {
			t.Errorf("line %d = %q, want it to start with %q", i, line, wantOrder[i])
		}
	}
}

func TestStatsRing_RecordAndRecent(t *testing.T) {
	ring := newStatsRing(2)
	for i := 0; i < 3; i++ {
		if err := ring.record(model.Stats{BlocklistLines: i}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	recent, err := ring.recent()
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected ring capped at 2 entries, got %d", len(recent))
	}
	if recent[0].BlocklistLines != 1 || recent[1].BlocklistLines != 2 {
		t.Errorf("recent = %+v, want oldest-evicted order [1, 2]", recent)
	}
}
