package trace

// TraceLevel controls the verbosity of run tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead). The run digest is still computed.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures risk decisions, rejections and message drops.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelEvents additionally captures every dispatched event.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelEvents:    true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects records during one simulation run.
type SimulationTrace struct {
	Config    TraceConfig
	Events    []EventRecord
	Decisions []DecisionRecord
	Drops     []DropRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:    config,
		Events:    make([]EventRecord, 0),
		Decisions: make([]DecisionRecord, 0),
		Drops:     make([]DropRecord, 0),
	}
}

func (st *SimulationTrace) decisions() bool {
	return st != nil && (st.Config.Level == TraceLevelDecisions || st.Config.Level == TraceLevelEvents)
}

// RecordEvent appends a dispatched event. Only kept at TraceLevelEvents.
func (st *SimulationTrace) RecordEvent(record EventRecord) {
	if st == nil || st.Config.Level != TraceLevelEvents {
		return
	}
	st.Events = append(st.Events, record)
}

// RecordDecision appends a risk or exchange decision.
func (st *SimulationTrace) RecordDecision(record DecisionRecord) {
	if !st.decisions() {
		return
	}
	st.Decisions = append(st.Decisions, record)
}

// RecordDrop appends a lost message.
func (st *SimulationTrace) RecordDrop(record DropRecord) {
	if !st.decisions() {
		return
	}
	st.Drops = append(st.Drops, record)
}
