// Package frameindex implements the two-pass MJR pre-parser (component C2):
// it rebuilds an ordered frame list from a capture file under RTP
// timestamp wrap/reset, ready for the replay pacer (C8) to walk.
package frameindex

// Packet is one ordered frame-list node, doubly linked so a pacer can free
// nodes incrementally while walking the list (spec.md §9).
type Packet struct {
	Seq    uint16
	TSExt  uint64
	Len    int
	Offset int64

	Prev, Next *Packet
}

// List is a doubly linked, timestamp/sequence-ordered list of Packets.
type List struct {
	Head, Tail *Packet
	Count      int
}

// seqLess reports whether a precedes b under wrap-aware sequence
// comparison: a raw difference larger than 10000 is treated as a 16-bit
// wrap, in which case the numerically smaller sequence is the later packet.
func seqLess(a, b uint16) bool {
	diff := int(a) - int(b)
	if diff > 10000 || diff < -10000 {
		return a > b
	}
	return a < b
}

// less orders primarily by extended timestamp, secondarily by wrap-aware
// sequence when two packets share a timestamp (fragmented frames).
func less(a, b *Packet) bool {
	if a.TSExt != b.TSExt {
		return a.TSExt < b.TSExt
	}
	return seqLess(a.Seq, b.Seq)
}

// insert walks backward from the tail to exploit the near-sortedness of
// RTP arrival order, per spec.md §4.2/§9.
func (l *List) insert(node *Packet) {
	if l.Tail == nil {
		l.Head = node
		l.Tail = node
		l.Count++
		return
	}

	cur := l.Tail
	for cur != nil && less(node, cur) {
		cur = cur.Prev
	}

	if cur == nil {
		node.Next = l.Head
		l.Head.Prev = node
		l.Head = node
	} else {
		node.Next = cur.Next
		node.Prev = cur
		if cur.Next != nil {
			cur.Next.Prev = node
		} else {
			l.Tail = node
		}
		cur.Next = node
	}

	l.Count++
}

// Free detaches and discards every node, for replay completion (spec.md
// §4.7 "Termination").
func (l *List) Free() {
	for n := l.Head; n != nil; {
		next := n.Next
		n.Prev = nil
		n.Next = nil
		n = next
	}
	l.Head = nil
	l.Tail = nil
	l.Count = 0
}
