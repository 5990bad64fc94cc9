package service

import "sync"

const runEventBuffer = 128

type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one progress update from a summarization or aggregation run.
type Event struct {
	Type    EventType `json:"eventType"`
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message,omitempty"`
	Percent int       `json:"progressPercent"`
}

// RunRegistry tracks runs and fans events out to every watcher. Each
// run keeps its event history, so a watcher attaching mid-run or after
// the terminal event replays what it missed before streaming live.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*runState
}

type runState struct {
	mu     sync.Mutex
	events []Event
	subs   []chan Event
	done   bool
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*runState)}
}

func (r *RunRegistry) create(runID string) {
	r.mu.Lock()
	r.runs[runID] = &runState{}
	r.mu.Unlock()
}

func (r *RunRegistry) lookup(runID string) (*runState, bool) {
	r.mu.RLock()
	st, ok := r.runs[runID]
	r.mu.RUnlock()
	return st, ok
}

// Watch returns a channel carrying the run's events, starting from the
// first one. The channel is closed after the terminal event; ok is
// false when the run is unknown.
func (r *RunRegistry) Watch(runID string) (<-chan Event, bool) {
	st, ok := r.lookup(runID)
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	ch := make(chan Event, len(st.events)+runEventBuffer)
	for _, ev := range st.events {
		ch <- ev
	}
	if st.done {
		close(ch)
	} else {
		st.subs = append(st.subs, ch)
	}
	return ch, true
}

// publish never blocks; a watcher whose buffer is full misses the
// event and catches up on the next one.
func (r *RunRegistry) publish(runID string, ev Event) {
	st, ok := r.lookup(runID)
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return
	}
	st.events = append(st.events, ev)
	for _, ch := range st.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// finish records the terminal event and closes every watcher channel.
// The run stays registered so later watchers replay the full history.
func (r *RunRegistry) finish(runID string, ev Event) {
	st, ok := r.lookup(runID)
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return
	}
	st.events = append(st.events, ev)
	st.done = true
	for _, ch := range st.subs {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
	}
	st.subs = nil
}
