// Package stream merges incremental assistant-output deltas into complete
// per-message display strings. The merge is pure bookkeeping: deltas carry a
// [start,end) cursor range over an ordered fragment sequence, and the
// accumulator only advances over contiguous ranges. A cursor gap means a
// delta was missed upstream; merging stalls for that stream rather than
// fabricating content.
package stream

import (
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/model"
)

// part accumulates one content part (text or reasoning) in arrival order.
type part struct {
	id        string
	reasoning bool
	buf       strings.Builder
}

// Accumulator holds the merge state for a single stream.
type Accumulator struct {
	cursor int
	order  []*part
	parts  map[string]*part
}

// NewAccumulator returns an empty accumulator positioned at cursor 0.
func NewAccumulator() *Accumulator {
	return &Accumulator{parts: make(map[string]*part)}
}

// Cursor returns the next fragment position the accumulator expects.
func (a *Accumulator) Cursor() int { return a.cursor }

// Apply merges deltas for one stream into the accumulator. Deltas are sorted
// by start cursor and walked in order: contiguous deltas append their
// fragments, stale deltas are skipped, and a gap stops the walk for this
// call; the remaining deltas are dropped and the gap is logged.
func (a *Accumulator) Apply(deltas []backend.Delta) {
	sorted := make([]backend.Delta, len(deltas))
	copy(sorted, deltas)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for _, d := range sorted {
		switch {
		case d.End <= a.cursor:
			// Already covered, a re-delivery from an earlier snapshot.
			continue
		case d.Start > a.cursor:
			log.Warn("delta cursor gap, stalling merge",
				"stream", d.StreamID, "cursor", a.cursor, "start", d.Start)
			return
		}

		if len(d.Fragments) == 0 {
			log.Debug("empty delta", "stream", d.StreamID, "start", d.Start, "end", d.End)
			a.cursor = d.End
			continue
		}

		// An overlapping delta re-covers fragments we already consumed;
		// append only the unseen tail.
		frags := d.Fragments
		if skip := a.cursor - d.Start; skip > 0 && skip <= len(frags) {
			frags = frags[skip:]
		}
		for _, f := range frags {
			a.append(f)
		}
		a.cursor = d.End
	}
}

func (a *Accumulator) append(f backend.Fragment) {
	p, ok := a.parts[f.PartID]
	if !ok {
		p = &part{
			id:        f.PartID,
			reasoning: f.Kind == backend.FragmentReasoningStart || f.Kind == backend.FragmentReasoningDelta,
		}
		a.parts[f.PartID] = p
		a.order = append(a.order, p)
	}
	p.buf.WriteString(f.Text)
}

// Text returns all accumulated text parts concatenated in arrival order.
func (a *Accumulator) Text() string {
	var b strings.Builder
	for _, p := range a.order {
		if !p.reasoning {
			b.WriteString(p.buf.String())
		}
	}
	return b.String()
}

// Reasoning returns all accumulated reasoning parts in arrival order.
func (a *Accumulator) Reasoning() string {
	var b strings.Builder
	for _, p := range a.order {
		if p.reasoning {
			b.WriteString(p.buf.String())
		}
	}
	return b.String()
}

// Overlay is the display-ready view of one stream's accumulated output.
type Overlay struct {
	StreamID  string
	Order     int
	Status    model.StreamStatus
	Text      string
	Reasoning string
}

// Merger tracks accumulators for every live stream of a thread and produces
// per-order overlays for the display list.
type Merger struct {
	accs map[string]*Accumulator
}

// NewMerger returns an empty merger.
func NewMerger() *Merger {
	return &Merger{accs: make(map[string]*Accumulator)}
}

// Cursors returns the current cursor position per stream id, in the shape the
// deltas query expects.
func (m *Merger) Cursors() map[string]int {
	out := make(map[string]int, len(m.accs))
	for id, acc := range m.accs {
		out[id] = acc.cursor
	}
	return out
}

// Apply routes deltas to their per-stream accumulators.
func (m *Merger) Apply(deltas []backend.Delta) {
	byStream := make(map[string][]backend.Delta)
	for _, d := range deltas {
		byStream[d.StreamID] = append(byStream[d.StreamID], d)
	}
	for id, ds := range byStream {
		acc, ok := m.accs[id]
		if !ok {
			acc = NewAccumulator()
			m.accs[id] = acc
		}
		acc.Apply(ds)
	}
}

// Overlays returns the accumulated output for the given streams, keyed by
// message order. Streams with status finished or aborted freeze at whatever
// was accumulated; a streaming status shows the partial text.
func (m *Merger) Overlays(streams []model.Stream) map[int]Overlay {
	out := make(map[int]Overlay, len(streams))
	for _, s := range streams {
		acc, ok := m.accs[s.ID]
		if !ok {
			continue
		}
		out[s.Order] = Overlay{
			StreamID:  s.ID,
			Order:     s.Order,
			Status:    s.Status,
			Text:      acc.Text(),
			Reasoning: acc.Reasoning(),
		}
	}
	return out
}

// Drop forgets a stream's accumulator, typically after its message reached a
// terminal status in the confirmed page.
func (m *Merger) Drop(streamID string) {
	delete(m.accs, streamID)
}
