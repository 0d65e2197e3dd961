package registry

import (
	"net/netip"
	"reflect"
	"testing"

	"asnwatch/pkg/model"
)

func ip(t *testing.T, s string) netip.Addr {
	t.Helper()
	return netip.MustParseAddr(s)
}

func TestRegistry_NewRecordRequiresOrg(t *testing.T) {
	r := New()
	if err := r.Insert(ip(t, "10.1.2.3"), "some desc", "", "", ""); err != model.ErrInvalidRecord {
		t.Fatalf("Insert without org = %v, want ErrInvalidRecord", err)
	}
	if r.Len() != 0 {
		t.Fatalf("registry should remain empty after a rejected insert")
	}
}

func TestRegistry_MergeIdempotence(t *testing.T) {
	a := New()
	a.Insert(ip(t, "10.1.2.3"), "d", "", "", "dshield")
	a.Insert(ip(t, "10.1.2.3"), "d", "", "", "dshield")

	b := New()
	b.Insert(ip(t, "10.1.2.3"), "d", "", "", "dshield")

	recA, _ := a.Lookup(ip(t, "10.1.2.3"))
	recB, _ := b.Lookup(ip(t, "10.1.2.3"))
	if !reflect.DeepEqual(recA.Descs, recB.Descs) || !reflect.DeepEqual(recA.Orgs, recB.Orgs) {
		t.Errorf("repeated identical insert changed the record: %+v vs %+v", recA, recB)
	}
}

func TestRegistry_MergeCommutativity(t *testing.T) {
	addr := ip(t, "10.1.2.3")

	order1 := New()
	order1.Insert(addr, "first", "", "", "dshield")
	order1.Insert(addr, "second", "64500", "US", "manual")

	order2 := New()
	order2.Insert(addr, "second", "64500", "US", "manual")
	order2.Insert(addr, "first", "", "", "dshield")

	rec1, _ := order1.Lookup(addr)
	rec2, _ := order2.Lookup(addr)
	if !reflect.DeepEqual(rec1.Descs, rec2.Descs) ||
		!reflect.DeepEqual(rec1.ASNs, rec2.ASNs) ||
		!reflect.DeepEqual(rec1.CCs, rec2.CCs) ||
		!reflect.DeepEqual(rec1.Orgs, rec2.Orgs) {
		t.Errorf("insert order changed the final record: %+v vs %+v", rec1, rec2)
	}
}

func TestRegistry_MergeWhoisLine(t *testing.T) {
	r := New()
	addr := ip(t, "198.51.100.9")
	if err := r.Insert(addr, "", "", "", "dshield"); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	if err := r.MergeWhoisLine("64500 | 198.51.100.9 | US | ExampleNet"); err != nil {
		t.Fatalf("MergeWhoisLine: %v", err)
	}

	rec, _ := r.Lookup(addr)
	if _, ok := rec.ASNs["64500"]; !ok {
		t.Errorf("expected ASN 64500 merged, got %+v", rec.ASNs)
	}
	if _, ok := rec.CCs["US"]; !ok {
		t.Errorf("expected CC US merged, got %+v", rec.CCs)
	}
	if _, ok := rec.Descs["ExampleNet"]; !ok {
		t.Errorf("expected desc ExampleNet merged, got %+v", rec.Descs)
	}
}

func TestRegistry_MergeWhoisLineUnknownIPDropped(t *testing.T) {
	r := New()
	if err := r.MergeWhoisLine("64500 | 203.0.113.9 | US | ExampleNet"); err != model.ErrUnknownIP {
		t.Fatalf("MergeWhoisLine for unknown IP = %v, want ErrUnknownIP", err)
	}
	if r.Len() != 0 {
		t.Errorf("whois merge for an unknown IP must not create a record")
	}
}

func TestRegistry_EnumerateFiltered(t *testing.T) {
	r := New()
	r.Insert(ip(t, "10.0.0.1"), "", "64500", "US", "dshield")
	r.Insert(ip(t, "10.0.0.2"), "", "64501", "CA", "manual")

	got := r.EnumerateFiltered(Filter{ASN: "64500"})
	if len(got) != 1 || got[0].IP != ip(t, "10.0.0.1") {
		t.Errorf("EnumerateFiltered(ASN=64500) = %+v, want just 10.0.0.1", got)
	}
}

func TestRegistry_EnumerateIsIPSorted(t *testing.T) {
	r := New()
	r.Insert(ip(t, "10.0.0.9"), "", "64500", "", "dshield")
	r.Insert(ip(t, "10.0.0.1"), "", "64500", "", "dshield")
	r.Insert(ip(t, "10.0.0.5"), "", "64500", "", "dshield")

	for run := 0; run < 5; run++ {
		got := r.EnumerateFiltered(Filter{ASN: "64500"})
		if len(got) != 3 {
			t.Fatalf("EnumerateFiltered returned %d records, want 3", len(got))
		}
		want := []string{"10.0.0.1", "10.0.0.5", "10.0.0.9"}
		for i, rec := range got {
			if rec.IP.String() != want[i] {
				t.Errorf("run %d: EnumerateFiltered()[%d].IP = %s, want %s", run, i, rec.IP, want[i])
			}
		}
	}

	for run := 0; run < 5; run++ {
		got := r.Enumerate()
		want := []string{"10.0.0.1", "10.0.0.5", "10.0.0.9"}
		for i, rec := range got {
			if rec.IP.String() != want[i] {
				t.Errorf("run %d: Enumerate()[%d].IP = %s, want %s", run, i, rec.IP, want[i])
			}
		}
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := New()
	r.Insert(ip(t, "10.0.0.1"), "", "", "", "dshield")
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Clear left %d records", r.Len())
	}
}
