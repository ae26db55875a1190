package stream

import (
	"testing"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/model"
)

func textDelta(streamID string, start, end int, partID, text string) backend.Delta {
	return backend.Delta{
		StreamID: streamID,
		Start:    start,
		End:      end,
		Fragments: []backend.Fragment{
			{Kind: backend.FragmentTextDelta, PartID: partID, Text: text},
		},
	}
}

func TestAccumulator(t *testing.T) {
	t.Run("in-order contiguous deltas concatenate", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Apply([]backend.Delta{
			textDelta("s1", 0, 1, "p1", "Hello"),
			textDelta("s1", 1, 2, "p1", ", "),
			textDelta("s1", 2, 3, "p1", "world"),
		})
		if got := acc.Text(); got != "Hello, world" {
			t.Errorf("Expected %q, got %q", "Hello, world", got)
		}
		if acc.Cursor() != 3 {
			t.Errorf("Expected cursor 3, got %d", acc.Cursor())
		}
	})

	t.Run("unsorted input is sorted by start cursor", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Apply([]backend.Delta{
			textDelta("s1", 1, 2, "p1", "b"),
			textDelta("s1", 0, 1, "p1", "a"),
			textDelta("s1", 2, 3, "p1", "c"),
		})
		if got := acc.Text(); got != "abc" {
			t.Errorf("Expected %q, got %q", "abc", got)
		}
	})

	t.Run("replay is idempotent once cursor advanced", func(t *testing.T) {
		deltas := []backend.Delta{
			textDelta("s1", 0, 1, "p1", "Hello"),
			textDelta("s1", 1, 2, "p1", " again"),
		}
		acc := NewAccumulator()
		acc.Apply(deltas)
		acc.Apply(deltas)
		if got := acc.Text(); got != "Hello again" {
			t.Errorf("Expected %q after replay, got %q", "Hello again", got)
		}
		if acc.Cursor() != 2 {
			t.Errorf("Expected cursor 2, got %d", acc.Cursor())
		}
	})

	t.Run("cursor gap halts merge and preserves text", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Apply([]backend.Delta{textDelta("s1", 0, 1, "p1", "keep")})
		acc.Apply([]backend.Delta{
			textDelta("s1", 3, 4, "p1", "lost"),
			textDelta("s1", 4, 5, "p1", "lost too"),
		})
		if got := acc.Text(); got != "keep" {
			t.Errorf("Expected accumulated text preserved, got %q", got)
		}
		if acc.Cursor() != 1 {
			t.Errorf("Expected cursor stalled at 1, got %d", acc.Cursor())
		}
	})

	t.Run("gap halts later deltas even when reachable", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Apply([]backend.Delta{
			textDelta("s1", 0, 1, "p1", "a"),
			textDelta("s1", 2, 3, "p1", "c"),
			textDelta("s1", 1, 2, "p1", "b"),
		})
		// Sorted walk fills the gap: 0,1,2 all apply.
		if got := acc.Text(); got != "abc" {
			t.Errorf("Expected %q, got %q", "abc", got)
		}
	})

	t.Run("zero-fragment delta advances cursor", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Apply([]backend.Delta{
			{StreamID: "s1", Start: 0, End: 1},
			textDelta("s1", 1, 2, "p1", "x"),
		})
		if got := acc.Text(); got != "x" {
			t.Errorf("Expected %q, got %q", "x", got)
		}
	})

	t.Run("overlapping delta appends only unseen fragments", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Apply([]backend.Delta{textDelta("s1", 0, 1, "p1", "a")})
		acc.Apply([]backend.Delta{{
			StreamID: "s1", Start: 0, End: 2,
			Fragments: []backend.Fragment{
				{Kind: backend.FragmentTextDelta, PartID: "p1", Text: "a"},
				{Kind: backend.FragmentTextDelta, PartID: "p1", Text: "b"},
			},
		}})
		if got := acc.Text(); got != "ab" {
			t.Errorf("Expected %q, got %q", "ab", got)
		}
	})

	t.Run("reasoning parts accumulate separately", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Apply([]backend.Delta{
			{StreamID: "s1", Start: 0, End: 1, Fragments: []backend.Fragment{
				{Kind: backend.FragmentReasoningStart, PartID: "r1", Text: "thinking"},
			}},
			{StreamID: "s1", Start: 1, End: 2, Fragments: []backend.Fragment{
				{Kind: backend.FragmentTextStart, PartID: "p1", Text: "answer"},
			}},
		})
		if got := acc.Reasoning(); got != "thinking" {
			t.Errorf("Expected reasoning %q, got %q", "thinking", got)
		}
		if got := acc.Text(); got != "answer" {
			t.Errorf("Expected text %q, got %q", "answer", got)
		}
	})
}

func TestMerger(t *testing.T) {
	t.Run("routes deltas per stream and reports cursors", func(t *testing.T) {
		m := NewMerger()
		m.Apply([]backend.Delta{
			textDelta("s1", 0, 1, "p1", "one"),
			textDelta("s2", 0, 1, "p1", "two"),
		})
		cursors := m.Cursors()
		if cursors["s1"] != 1 || cursors["s2"] != 1 {
			t.Errorf("Expected both cursors at 1, got %v", cursors)
		}
	})

	t.Run("overlays keyed by message order", func(t *testing.T) {
		m := NewMerger()
		m.Apply([]backend.Delta{textDelta("s1", 0, 1, "p1", "partial")})
		overlays := m.Overlays([]model.Stream{{ID: "s1", Order: 4, Status: model.StreamStreaming}})
		ov, ok := overlays[4]
		if !ok {
			t.Fatal("Expected overlay at order 4")
		}
		if ov.Text != "partial" || ov.Status != model.StreamStreaming {
			t.Errorf("Unexpected overlay: %+v", ov)
		}
	})

	t.Run("finished stream freezes accumulated text", func(t *testing.T) {
		m := NewMerger()
		m.Apply([]backend.Delta{textDelta("s1", 0, 1, "p1", "final")})
		overlays := m.Overlays([]model.Stream{{ID: "s1", Order: 0, Status: model.StreamFinished}})
		if overlays[0].Text != "final" {
			t.Errorf("Expected frozen text %q, got %q", "final", overlays[0].Text)
		}
	})

	t.Run("dropped stream produces no overlay", func(t *testing.T) {
		m := NewMerger()
		m.Apply([]backend.Delta{textDelta("s1", 0, 1, "p1", "x")})
		m.Drop("s1")
		overlays := m.Overlays([]model.Stream{{ID: "s1", Order: 0, Status: model.StreamStreaming}})
		if len(overlays) != 0 {
			t.Errorf("Expected no overlays after drop, got %v", overlays)
		}
	})
}
