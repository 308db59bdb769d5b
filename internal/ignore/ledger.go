// Package ignore records the sequence numbers of requests whose errors the
// compositor expects and must not treat as external failures, such as
// freeing a picture whose window the server already destroyed.
package ignore

import "fmt"

// Class groups requests by the kind of resource they act on.
type Class int

// None marks an error that does not refer to a tracked resource class.
const None Class = -1

const (
	Picture Class = iota
	Pixmap
	Damage
	Region
	Window
	numClasses
)

func (c Class) String() string {
	switch c {
	case None:
		return "none"
	case Picture:
		return "picture"
	case Pixmap:
		return "pixmap"
	case Damage:
		return "damage"
	case Region:
		return "region"
	case Window:
		return "window"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Ledger keeps one FIFO of pending sequence numbers per class. Sequence
// numbers are the full, unwrapped request counter, so plain integer
// comparison orders them.
type Ledger struct {
	queues [numClasses][]uint64
}

// Record notes that the request with sequence seq, acting on a resource of
// class c, may fail and should be ignored if it does. Sequences must be
// recorded in increasing order per class.
func (l *Ledger) Record(c Class, seq uint64) {
	if c < 0 || c >= numClasses {
		return
	}
	q := l.queues[c]
	if n := len(q); n > 0 && q[n-1] >= seq {
		return
	}
	l.queues[c] = append(q, seq)
}

// Expire drops every entry older than seq in every class. The server
// answers requests in order, so once an event carrying seq arrives no
// error can follow for an earlier request.
func (l *Ledger) Expire(seq uint64) {
	for c := range l.queues {
		q := l.queues[c]
		i := 0
		for i < len(q) && q[i] < seq {
			i++
		}
		if i > 0 {
			l.queues[c] = q[i:]
		}
	}
}

// ShouldIgnore reports whether an error with sequence seq on a resource of
// class c was expected. Older entries are expired first. The error is
// ignored when seq is at or before the oldest pending entry of c; an exact
// match consumes that entry.
func (l *Ledger) ShouldIgnore(c Class, seq uint64) bool {
	if c < 0 || c >= numClasses {
		return false
	}
	l.Expire(seq)
	q := l.queues[c]
	if len(q) == 0 || seq > q[0] {
		return false
	}
	if seq == q[0] {
		l.queues[c] = q[1:]
	}
	return true
}

// Pending returns a copy of the outstanding entries for c, oldest first.
func (l *Ledger) Pending(c Class) []uint64 {
	if c < 0 || c >= numClasses || len(l.queues[c]) == 0 {
		return nil
	}
	return append([]uint64(nil), l.queues[c]...)
}

// Len returns the total number of outstanding entries.
func (l *Ledger) Len() int {
	n := 0
	for _, q := range l.queues {
		n += len(q)
	}
	return n
}
