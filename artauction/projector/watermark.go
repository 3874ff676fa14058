package projector

import (
	"sync"

	"github.com/chainpalette/art-auction/artauction/chain"
)

// watermarkTracker turns per-shard completions back into a single
// confirmed-applied position. Events are numbered in received order at
// dispatch; the watermark only advances over the contiguous prefix of
// completed sequence numbers, so an in-flight event on one shard holds the
// watermark back even when later events on other shards already finished.
type watermarkTracker struct {
	mu      sync.Mutex
	nextSeq uint64
	confirm uint64
	done    map[uint64]chain.Position
	current chain.Position
}

func newWatermarkTracker() *watermarkTracker {
	return &watermarkTracker{done: make(map[uint64]chain.Position)}
}

func (t *watermarkTracker) reset(pos chain.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = pos
}

func (t *watermarkTracker) assign() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.nextSeq
	t.nextSeq++
	return seq
}

// complete marks seq applied at pos and reports the watermark together
// with whether it advanced.
func (t *watermarkTracker) complete(seq uint64, pos chain.Position) (chain.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done[seq] = pos
	advanced := false
	for {
		p, ok := t.done[t.confirm]
		if !ok {
			break
		}
		delete(t.done, t.confirm)
		t.confirm++
		// Redelivered events after a restore sit at or before the restored
		// position; they must never move the watermark backwards.
		if t.current.Less(p) {
			t.current = p
			advanced = true
		}
	}
	return t.current, advanced
}

func (t *watermarkTracker) watermark() chain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
