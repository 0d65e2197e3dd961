// Package prefixindex implements the ASN prefix index (C1) and the prefix
// aggregator (C2).
//
// The index is an AA-tree (Arne Andersson's simplified red-black variant):
// a self-balancing BST using a per-node "level" instead of node colors,
// rebalanced on insert with the skew/split pair. Ordering is not plain key
// comparison: a query IP is "inside" a node's prefix if contained, else
// "less" if numerically below the prefix's first address and "greater" if
// above its last address, matching the containment-based comparison used
// to correlate a hostile IP against the monitored ASNs' announced space.
package prefixindex

import (
	"net/netip"

	"asnwatch/pkg/model"
)

type node struct {
	level int
	start uint32 // prefix's first address, cached for ordering
	end   uint32 // prefix's last address
	bits  int
	asn   string
	subs  [2]*node
}

// nilNode is the AA-tree sentinel: level 0, both children point to itself.
var nilNode = &node{level: 0}

func init() {
	nilNode.subs[0] = nilNode
	nilNode.subs[1] = nilNode
}

// Tree is the balanced prefix-to-ASN index (C1).
type Tree struct {
	root *node
}

// New returns an empty index.
func New() *Tree {
	return &Tree{root: nilNode}
}

// Height reports the AA-tree level of the root, 0 for an empty tree. Useful
// only as a diagnostic; it is not the conventional node-count height.
func (t *Tree) Height() int {
	return t.root.level
}

// Insert adds prefix with the given ASN tag. If the exact same prefix
// (network and length) is inserted twice, the second insert's ASN wins —
// a safety rule, not a merge rule: well-formed, aggregated route-server
// output should never produce duplicates.
func (t *Tree) Insert(p model.Prefix, asn string) {
	start := model.AddrToUint32(p.Network)
	end := model.AddrToUint32(p.LastAddr())
	if t.root != nilNode {
		t.root = split(skew(t.insert(t.root, start, end, p.Bits, asn)))
	} else {
		t.root = &node{level: 1, start: start, end: end, bits: p.Bits, asn: asn, subs: [2]*node{nilNode, nilNode}}
	}
}

func (t *Tree) insert(n *node, start, end uint32, bits int, asn string) *node {
	switch {
	case start == n.start && bits == n.bits:
		n.asn = asn
		n.end = end
	default:
		side := sideOf(start, n)
		sub := n.subs[side]
		if sub != nilNode {
			n.subs[side] = split(skew(t.insert(sub, start, end, bits, asn)))
		} else {
			n.subs[side] = &node{level: 1, start: start, end: end, bits: bits, asn: asn, subs: [2]*node{nilNode, nilNode}}
		}
	}
	return n
}

// sideOf reports which child index a candidate starting at start belongs
// under, relative to n: 0 (left) if numerically below n's start, 1 (right)
// otherwise.
func sideOf(start uint32, n *node) int {
	if start < n.start {
		return 0
	}
	return 1
}

// Lookup returns the ASN whose announced space contains ip, or "", false if
// no indexed prefix covers it.
func (t *Tree) Lookup(ip netip.Addr) (string, bool) {
	if t.root == nilNode {
		return "", false
	}
	return t.lookup(t.root, model.AddrToUint32(ip))
}

func (t *Tree) lookup(n *node, x uint32) (string, bool) {
	if x >= n.start && x <= n.end {
		return n.asn, true
	}
	side := 0
	if x > n.end {
		side = 1
	}
	sub := n.subs[side]
	if sub == nilNode {
		return "", false
	}
	return t.lookup(sub, x)
}

// Entry is one indexed prefix paired with its announcing ASN.
type Entry struct {
	Prefix model.Prefix
	ASN    string
}

// Entries returns every indexed prefix in ascending network-address order.
func (t *Tree) Entries() []Entry {
	var out []Entry
	t.walk(t.root, &out)
	return out
}

func (t *Tree) walk(n *node, out *[]Entry) {
	if n == nilNode {
		return
	}
	t.walk(n.subs[0], out)
	*out = append(*out, Entry{
		Prefix: model.Prefix{Network: model.Uint32ToAddr(n.start), Bits: n.bits},
		ASN:    n.asn,
	})
	t.walk(n.subs[1], out)
}

// skew removes a left horizontal link by rotating right at the parent.
func skew(t *node) *node {
	if t.level != 0 && t.subs[0].level == t.level {
		tmp := t.subs[0]
		t.subs[0] = tmp.subs[1]
		tmp.subs[1] = t
		return tmp
	}
	return t
}

// split removes consecutive horizontal links by rotating left and bumping
// the parent's level.
func split(t *node) *node {
	if t.level != 0 && t.level == t.subs[1].subs[1].level {
		tmp := t.subs[1]
		t.subs[1] = tmp.subs[0]
		tmp.subs[0] = t
		tmp.level++
		return tmp
	}
	return t
}
