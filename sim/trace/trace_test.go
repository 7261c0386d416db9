package trace

import (
	"testing"
)

func TestSimulationTrace_RecordDecision_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN a decision record is recorded
	st.RecordDecision(DecisionRecord{
		OrderID: "o-000001",
		Clock:   1000,
		Source:  "risk",
		Reason:  "fat_finger",
	})

	// THEN the trace contains one decision record with correct data
	if len(st.Decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(st.Decisions))
	}
	if st.Decisions[0].OrderID != "o-000001" {
		t.Errorf("expected order ID o-000001, got %s", st.Decisions[0].OrderID)
	}
	if st.Decisions[0].Approved {
		t.Error("expected approved=false")
	}
}

func TestSimulationTrace_EventsOnlyAtEventsLevel(t *testing.T) {
	// GIVEN traces at each level
	tests := []struct {
		level      TraceLevel
		wantEvents int
		wantDrops  int
	}{
		{TraceLevelNone, 0, 0},
		{TraceLevelDecisions, 0, 1},
		{TraceLevelEvents, 2, 1},
	}
	for _, tt := range tests {
		st := NewSimulationTrace(TraceConfig{Level: tt.level})

		// WHEN events and drops are recorded
		st.RecordEvent(EventRecord{Seq: 1, Clock: 10, Kind: "market_data"})
		st.RecordEvent(EventRecord{Seq: 2, Clock: 10, Kind: "order_submit"})
		st.RecordDrop(DropRecord{Clock: 11, Channel: "market_data", Reason: "packet_loss"})

		// THEN only the configured verbosity is kept
		if len(st.Events) != tt.wantEvents {
			t.Errorf("level %s: expected %d events, got %d", tt.level, tt.wantEvents, len(st.Events))
		}
		if len(st.Drops) != tt.wantDrops {
			t.Errorf("level %s: expected %d drops, got %d", tt.level, tt.wantDrops, len(st.Drops))
		}
	}
}

func TestSimulationTrace_NilIsNoop(t *testing.T) {
	var st *SimulationTrace
	st.RecordEvent(EventRecord{})
	st.RecordDecision(DecisionRecord{})
	st.RecordDrop(DropRecord{})
}

func TestIsValidTraceLevel(t *testing.T) {
	for _, l := range []string{"", "none", "decisions", "events"} {
		if !IsValidTraceLevel(l) {
			t.Errorf("expected %q to be valid", l)
		}
	}
	if IsValidTraceLevel("verbose") {
		t.Error("expected verbose to be invalid")
	}
}

func TestDigest_OrderAndContentSensitive(t *testing.T) {
	// GIVEN two digests fed the same stream
	a, b := NewDigest(), NewDigest()
	for _, d := range []*Digest{a, b} {
		d.Add(1, 1, "market_data", "wire")
		d.Add(1, 2, "order_submit", "o-000001")
	}

	// THEN they agree
	if a.Sum() != b.Sum() {
		t.Fatalf("identical streams produced different digests")
	}
	if a.Len() != 2 {
		t.Errorf("expected 2 events, got %d", a.Len())
	}

	// WHEN the order of two events differs
	c := NewDigest()
	c.Add(1, 2, "order_submit", "o-000001")
	c.Add(1, 1, "market_data", "wire")

	// THEN the digest differs
	if c.Sum() == a.Sum() {
		t.Error("reordered stream produced the same digest")
	}

	// AND field boundaries matter
	x, y := NewDigest(), NewDigest()
	x.Add(0, 0, "ab", "c")
	y.Add(0, 0, "a", "bc")
	if x.Sum() == y.Sum() {
		t.Error("kind/subject boundary is not part of the digest")
	}
}
