package battery

// DiagnosticKind classifies events surfaced by the battery core. None of
// them is returned as an error: the core recovers in-band and reports.
type DiagnosticKind string

const (
	// DiagClamp marks a value forced back into its valid range.
	DiagClamp DiagnosticKind = "clamp"
	// DiagLimit marks an over-current handled by the series limiter.
	DiagLimit DiagnosticKind = "limit"
	// DiagDivergence marks a non-finite input that was discarded.
	DiagDivergence DiagnosticKind = "divergence"
	// DiagWatchdog marks the thermal watchdog firing.
	DiagWatchdog DiagnosticKind = "watchdog"
	// DiagDepleted marks wear reaching zero.
	DiagDepleted DiagnosticKind = "depleted"
)

// Diagnostic is a single observability record.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	Source string         `json:"source"`
	Detail string         `json:"detail"`
	Value  float64        `json:"value"`
}

// DiagnosticRecorder receives diagnostics. Implementations must not block.
type DiagnosticRecorder interface {
	RecordDiagnostic(d Diagnostic)
}

// DiagnosticFunc adapts a function to DiagnosticRecorder.
type DiagnosticFunc func(Diagnostic)

// RecordDiagnostic calls f(d).
func (f DiagnosticFunc) RecordDiagnostic(d Diagnostic) { f(d) }

type nopRecorder struct{}

func (nopRecorder) RecordDiagnostic(Diagnostic) {}

// DiagnosticLog keeps every diagnostic in memory.
type DiagnosticLog struct {
	entries []Diagnostic
}

// RecordDiagnostic appends d.
func (l *DiagnosticLog) RecordDiagnostic(d Diagnostic) { l.entries = append(l.entries, d) }

// Entries returns a copy of the recorded diagnostics.
func (l *DiagnosticLog) Entries() []Diagnostic {
	out := make([]Diagnostic, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns how many diagnostics of the given kind were recorded.
func (l *DiagnosticLog) Count(kind DiagnosticKind) int {
	n := 0
	for _, d := range l.entries {
		if d.Kind == kind {
			n++
		}
	}
	return n
}
