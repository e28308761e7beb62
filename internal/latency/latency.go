// Package latency keeps per-phase timings of the review pipeline.
package latency

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Phases recorded by the server.
const (
	PhasePromptFetch = "prompt_fetch"
	PhaseAssemble    = "assemble"
	PhaseLLMCall     = "llm_call"
	PhaseReview      = "review"
	PhaseComment     = "comment"
)

// DefaultSamples is the number of recent samples kept per phase.
const DefaultSamples = 512

// Summary describes the recent samples of one phase. Durations are in
// milliseconds and use nearest-rank percentiles.
type Summary struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	MeanMs   float64 `json:"mean_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P90Ms    float64 `json:"p90_ms"`
	MaxMs    float64 `json:"max_ms"`
	Last     string  `json:"last,omitempty"`
}

// ring holds the newest samples of one phase.
type ring struct {
	durations []time.Duration
	failed    []bool
	next      int
	full      bool
	last      time.Time
}

func (r *ring) put(d time.Duration, failed bool, at time.Time) {
	r.durations[r.next] = d
	r.failed[r.next] = failed
	r.next++
	if r.next == len(r.durations) {
		r.next = 0
		r.full = true
	}
	r.last = at
}

func (r *ring) len() int {
	if r.full {
		return len(r.durations)
	}
	return r.next
}

// Tracker records phase durations. A nil *Tracker records nothing, so
// callers can hold one unconditionally.
type Tracker struct {
	mu     sync.Mutex
	size   int
	phases map[string]*ring
	now    func() time.Time
}

// New returns a tracker keeping the last samples durations per phase.
func New(samples int) *Tracker {
	if samples <= 0 {
		samples = DefaultSamples
	}
	return &Tracker{size: samples, phases: make(map[string]*ring), now: time.Now}
}

// Observe records one run of phase. A non-nil err counts as a failure.
func (t *Tracker) Observe(phase string, d time.Duration, err error) {
	if t == nil {
		return
	}
	d = max(d, 0)

	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.phases[phase]
	if r == nil {
		r = &ring{durations: make([]time.Duration, t.size), failed: make([]bool, t.size)}
		t.phases[phase] = r
	}
	r.put(d, err != nil, t.now())
}

// Start begins timing phase. The returned func records the elapsed time
// with the phase outcome.
func (t *Tracker) Start(phase string) func(err error) {
	if t == nil {
		return func(error) {}
	}
	begin := t.now()
	return func(err error) {
		t.Observe(phase, t.now().Sub(begin), err)
	}
}

// Snapshot summarises every phase seen so far.
func (t *Tracker) Snapshot() map[string]Summary {
	out := make(map[string]Summary)
	if t == nil {
		return out
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for phase, r := range t.phases {
		out[phase] = summarize(r)
	}
	return out
}

func summarize(r *ring) Summary {
	n := r.len()
	if n == 0 {
		return Summary{}
	}
	sorted := slices.Clone(r.durations[:n])
	slices.Sort(sorted)

	s := Summary{Count: n, Last: r.last.UTC().Format(time.RFC3339)}
	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	for _, f := range r.failed[:n] {
		if f {
			s.Failures++
		}
	}
	s.MeanMs = ms(total / time.Duration(n))
	s.P50Ms = ms(rank(sorted, 0.50))
	s.P90Ms = ms(rank(sorted, 0.90))
	s.MaxMs = ms(sorted[n-1])
	return s
}

// rank returns the nearest-rank percentile q of sorted.
func rank(sorted []time.Duration, q float64) time.Duration {
	i := int(math.Ceil(q*float64(len(sorted)))) - 1
	return sorted[min(max(i, 0), len(sorted)-1)]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
