package prefixindex

import (
	"net/netip"
	"testing"

	"asnwatch/pkg/model"
)

func mustPrefix(t *testing.T, s string) model.Prefix {
	t.Helper()
	p, err := model.ParsePrefix(s)
	if err != nil {
		t.Fatalf("ParsePrefix(%q): %v", s, err)
	}
	return p
}

func TestTree_LookupCoverage(t *testing.T) {
	tree := New()
	tree.Insert(mustPrefix(t, "10.0.0.0/24"), "64500")
	tree.Insert(mustPrefix(t, "192.0.2.0/24"), "64501")

	tests := []struct {
		ip      string
		wantASN string
		wantOK  bool
	}{
		{"10.0.0.1", "64500", true},
		{"10.0.0.255", "64500", true},
		{"192.0.2.128", "64501", true},
		{"10.0.1.0", "", false},
		{"172.16.0.1", "", false},
	}

	for _, tt := range tests {
		asn, ok := tree.Lookup(netip.MustParseAddr(tt.ip))
		if ok != tt.wantOK || asn != tt.wantASN {
			t.Errorf("Lookup(%s) = (%q, %v), want (%q, %v)", tt.ip, asn, ok, tt.wantASN, tt.wantOK)
		}
	}
}

func TestTree_DuplicatePrefixOverwrites(t *testing.T) {
	tree := New()
	tree.Insert(mustPrefix(t, "10.0.0.0/24"), "64500")
	tree.Insert(mustPrefix(t, "10.0.0.0/24"), "64999")

	asn, ok := tree.Lookup(netip.MustParseAddr("10.0.0.1"))
	if !ok || asn != "64999" {
		t.Errorf("Lookup after duplicate insert = (%q, %v), want (64999, true)", asn, ok)
	}
}

func TestTree_StaysBalanced(t *testing.T) {
	tree := New()
	// Insert enough non-overlapping /24s, in ascending order (the worst
	// case for an unbalanced BST), and confirm height grows logarithmically
	// rather than linearly.
	n := 200
	for i := 0; i < n; i++ {
		p := model.Prefix{Network: model.Uint32ToAddr(uint32(i) << 8), Bits: 24}
		tree.Insert(p, "64500")
	}

	if h := tree.Height(); h > 12 {
		t.Errorf("tree height = %d after %d ascending inserts, want a balanced tree (<=12)", h, n)
	}

	// Spot check a late insertion is still reachable.
	last := model.Uint32ToAddr(uint32(n-1) << 8)
	if asn, ok := tree.Lookup(last); !ok || asn != "64500" {
		t.Errorf("Lookup(last inserted) = (%q, %v), want (64500, true)", asn, ok)
	}
}

func TestTree_EmptyLookup(t *testing.T) {
	tree := New()
	if _, ok := tree.Lookup(netip.MustParseAddr("1.2.3.4")); ok {
		t.Errorf("Lookup on empty tree should miss")
	}
}
