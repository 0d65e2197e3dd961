package orchestrator

import (
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	"asnwatch/pkg/model"
)

// statsRing keeps a bounded, process-local history of recent cycle
// statistics for diagnostics (e.g. an operator console or health-check
// handler reading "how did the last few cycles go"). Each entry is
// msgpack-encoded and snappy-compressed before being held in memory; this
// mirrors the teacher's iporgdb record encoding without writing anything to
// disk, since cross-cycle persistence is explicitly out of scope — the
// ring disappears when the process exits.
type statsRing struct {
	mu       sync.Mutex
	capacity int
	entries  [][]byte
}

func newStatsRing(capacity int) *statsRing {
	if capacity <= 0 {
		capacity = 20
	}
	return &statsRing{capacity: capacity}
}

// record encodes and appends a snapshot, evicting the oldest entry once the
// ring is full.
func (r *statsRing) record(s model.Stats) error {
	packed, err := msgpack.Marshal(&s)
	if err != nil {
		return fmt.Errorf("statsRing: marshal: %w", err)
	}
	compressed := snappy.Encode(nil, packed)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, compressed)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
	return nil
}

// recent decodes every snapshot currently held, oldest first.
func (r *statsRing) recent() ([]model.Stats, error) {
	r.mu.Lock()
	raw := make([][]byte, len(r.entries))
	copy(raw, r.entries)
	r.mu.Unlock()

	out := make([]model.Stats, 0, len(raw))
	for _, compressed := range raw {
		packed, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, fmt.Errorf("statsRing: decompress: %w", err)
		}
		var s model.Stats
		if err := msgpack.Unmarshal(packed, &s); err != nil {
			return nil, fmt.Errorf("statsRing: unmarshal: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}
