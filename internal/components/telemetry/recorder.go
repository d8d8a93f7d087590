package telemetry

import (
	"strings"
	"sync"
)

type Report struct {
	ID     string
	Params []any
}

// Recorder is an in-memory API, it is meant for tests that need to assert
// that a component reported (or did not report) something.
type Recorder struct {
	mu       sync.Mutex
	broken   []Report
	warnings []Report
	debug    []Report
	counts   map[string]int64
}

func NewRecorder() *Recorder {
	return &Recorder{counts: map[string]int64{}}
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = append(r.broken, Report{ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, Report{ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debug = append(r.debug, Report{ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id] = count
}

func (r *Recorder) Broken() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.broken...)
}

func (r *Recorder) Warnings() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.warnings...)
}

func (r *Recorder) Count(id string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.counts[id]
	return n, ok
}

// HasBroken returns true if any broken report id ends with the given suffix,
// this lets tests ignore the ScopedAPI namespace.
func (r *Recorder) HasBroken(idSuffix string) bool {
	return hasSuffix(r.Broken(), idSuffix)
}

// HasWarning is HasBroken for warnings.
func (r *Recorder) HasWarning(idSuffix string) bool {
	return hasSuffix(r.Warnings(), idSuffix)
}

func hasSuffix(reports []Report, suffix string) bool {
	for _, rep := range reports {
		if strings.HasSuffix(rep.ID, suffix) {
			return true
		}
	}
	return false
}
