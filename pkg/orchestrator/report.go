package orchestrator

import (
	"sort"
	"strings"

	"asnwatch/pkg/model"
	"asnwatch/pkg/registry"
)

// fieldSep joins the members of a record's sets into one string at report
// time only; the canonical representation stays a Go set throughout the
// rest of the pipeline, per the "store as actual sets" design note.
const fieldSep = " | "

func joinSet(set map[string]struct{}) string {
	if len(set) == 0 {
		return ""
	}
	items := make([]string, 0, len(set))
	for v := range set {
		items = append(items, v)
	}
	sort.Strings(items)
	return strings.Join(items, fieldSep)
}

func recordLine(rec *model.HostileRecord) string {
	return strings.Join([]string{
		rec.IP.String(),
		joinSet(rec.ASNs),
		joinSet(rec.CCs),
		joinSet(rec.Orgs),
		joinSet(rec.Descs),
	}, " ")
}

// buildReport enumerates reg filtered by each monitored ASN in turn and
// concatenates the resulting record lines, separated by delim. Each group's
// records come back IP-sorted from EnumerateFiltered, so the emitted report
// is byte-identical across runs given identical inputs, per spec.md §8's
// cycle-determinism property.
func buildReport(reg *registry.Registry, monitoredASNs []string, delim string) string {
	var lines []string
	for _, asn := range monitoredASNs {
		for _, rec := range reg.EnumerateFiltered(registry.Filter{ASN: asn}) {
			lines = append(lines, recordLine(rec))
		}
	}
	return strings.Join(lines, delim)
}
