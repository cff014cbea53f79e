package pipeline

import (
	"container/heap"

	"github.com/ovrbk/matchcast/internal/commentary"
)

// AudioClip is one synthesized commentary segment ready for mixing. Audio is
// nil when synthesis failed; the segment still occupies its slot on the
// timeline so ordering stays intact.
type AudioClip struct {
	Segment commentary.Segment
	Audio   []byte
}

// ReorderBuffer restores timeline order over clips arriving out of order
// from the synthesis fan-out. Parallel synthesis is the only place ordering
// is lost, so a min-heap on segment start time is sufficient.
type ReorderBuffer struct {
	h clipHeap
}

// Push adds a clip.
func (b *ReorderBuffer) Push(clip AudioClip) {
	heap.Push(&b.h, clip)
}

// Peek returns the earliest buffered clip without removing it.
func (b *ReorderBuffer) Peek() (AudioClip, bool) {
	if len(b.h) == 0 {
		return AudioClip{}, false
	}
	return b.h[0], true
}

// Pop removes and returns the earliest buffered clip.
func (b *ReorderBuffer) Pop() (AudioClip, bool) {
	if len(b.h) == 0 {
		return AudioClip{}, false
	}
	return heap.Pop(&b.h).(AudioClip), true
}

// Len returns the number of buffered clips.
func (b *ReorderBuffer) Len() int {
	return len(b.h)
}

type clipHeap []AudioClip

func (h clipHeap) Len() int           { return len(h) }
func (h clipHeap) Less(i, j int) bool { return h[i].Segment.StartSec < h[j].Segment.StartSec }
func (h clipHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *clipHeap) Push(x any)        { *h = append(*h, x.(AudioClip)) }
func (h *clipHeap) Pop() any {
	old := *h
	n := len(old)
	clip := old[n-1]
	*h = old[:n-1]
	return clip
}
