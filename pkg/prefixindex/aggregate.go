package prefixindex

import (
	"sort"

	"asnwatch/pkg/model"
)

// Aggregate collapses prefixes (all assumed to belong to one ASN) into the
// minimal equivalent set of supernets: the union of addresses is unchanged,
// and no two output prefixes are adjacent-and-same-length or one contained
// in another. Deterministic for any fixed input.
func Aggregate(prefixes []model.Prefix) []model.Prefix {
	if len(prefixes) == 0 {
		return nil
	}

	type span struct {
		start, end uint32
	}
	spans := make([]span, 0, len(prefixes))
	for _, p := range prefixes {
		spans = append(spans, span{
			start: model.AddrToUint32(p.Network),
			end:   model.AddrToUint32(p.LastAddr()),
		})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var out []model.Prefix
	curStart, curEnd := spans[0].start, spans[0].end
	for _, s := range spans[1:] {
		if s.start <= curEnd+1 {
			if s.end > curEnd {
				curEnd = s.end
			}
			continue
		}
		out = append(out, rangeToPrefixes(curStart, curEnd)...)
		curStart, curEnd = s.start, s.end
	}
	out = append(out, rangeToPrefixes(curStart, curEnd)...)
	return out
}

// rangeToPrefixes converts an inclusive [start, end] IPv4 range into the
// minimal list of CIDR blocks covering it, by repeatedly taking the
// largest power-of-two-aligned block that fits.
func rangeToPrefixes(start, end uint32) []model.Prefix {
	var out []model.Prefix
	for start <= end {
		maxTrailingZeros := 32
		if start != 0 {
			maxTrailingZeros = 0
			for v := start; v&1 == 0; v >>= 1 {
				maxTrailingZeros++
			}
		}

		bits := 32
		for pl := 32 - maxTrailingZeros; pl <= 32; pl++ {
			blockSize := uint32(1) << uint(32-pl)
			blockEnd := start + blockSize - 1
			if blockEnd <= end {
				bits = pl
				break
			}
		}

		out = append(out, model.Prefix{Network: model.Uint32ToAddr(start), Bits: bits})

		blockSize := uint32(1) << uint(32-bits)
		next := start + blockSize
		if next < start { // wrapped around 0xFFFFFFFF
			break
		}
		start = next
	}
	return out
}
