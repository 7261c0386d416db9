package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions int
	ApprovedCount  int
	RejectedCount  int
	RejectReasons  map[string]int // reason → count
	EventsByKind   map[string]int
	TotalDrops     int
	DropsByChannel map[string]int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		RejectReasons:  make(map[string]int),
		EventsByKind:   make(map[string]int),
		DropsByChannel: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Decisions)
	for _, d := range st.Decisions {
		if d.Approved {
			summary.ApprovedCount++
		} else {
			summary.RejectedCount++
			summary.RejectReasons[d.Reason]++
		}
	}
	for _, e := range st.Events {
		summary.EventsByKind[e.Kind]++
	}
	summary.TotalDrops = len(st.Drops)
	for _, d := range st.Drops {
		summary.DropsByChannel[d.Channel]++
	}
	return summary
}
