package emulator

import (
	"net/http"
	"sync"
)

// Fault is a canned failure returned instead of handling a request.
type Fault struct {
	Table  string // empty matches any table
	Status int
	Type   string
}

// Faults is a FIFO queue of injected failures.
type Faults struct {
	mu    sync.Mutex
	queue []Fault
}

// Inject queues n copies of f.
func (q *Faults) Inject(f Fault, n int) {
	if f.Type == "" {
		f.Type = defaultFaultType(f.Status)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < n; i++ {
		q.queue = append(q.queue, f)
	}
}

// Pending returns the number of queued faults.
func (q *Faults) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Reset drops every queued fault.
func (q *Faults) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = nil
}

// take pops the first fault that applies to tableName.
func (q *Faults) take(tableName string) (Fault, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, f := range q.queue {
		if f.Table == "" || f.Table == tableName {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return f, true
		}
	}
	return Fault{}, false
}

func defaultFaultType(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "RATE_LIMIT_REACHED"
	case http.StatusNotFound, http.StatusForbidden:
		return ModelNotFound
	case http.StatusUnprocessableEntity:
		return "INVALID_REQUEST_UNKNOWN"
	}
	if status >= 500 {
		return "SERVER_ERROR"
	}
	return "INVALID_REQUEST"
}
