package services

import (
	"sort"
	"sync"
	"time"

	"stack-keeper/internal/models"
)

// AllServices is the subscription key matching every service.
const AllServices = "all"

/**
 * LogStore keeps one bounded ring of log entries per service
 * @description
 * - Ids are per-service, strictly increasing and gap-free among retained
 *   entries; eviction drops the oldest entry and never blocks producers
 * - A single condition variable broadcasts appends to all subscribers;
 *   each subscriber keeps its own cursor so slow readers only lose what
 *   the ring itself evicted
 */
type LogStore struct {
	capacity int
	mu       sync.Mutex
	cond     *sync.Cond
	rings    map[string]*logRing
	seq      int64
}

type logRing struct {
	entries []models.LogEntry
	head    int
	count   int
	nextID  int64
}

func NewLogStore(capacity int) *LogStore {
	if capacity <= 0 {
		capacity = 500
	}
	ls := &LogStore{
		capacity: capacity,
		rings:    make(map[string]*logRing),
	}
	ls.cond = sync.NewCond(&ls.mu)
	return ls
}

func (ls *LogStore) ring(service string) *logRing {
	r := ls.rings[service]
	if r == nil {
		r = &logRing{
			entries: make([]models.LogEntry, ls.capacity),
			nextID:  1,
		}
		ls.rings[service] = r
	}
	return r
}

/**
 * Append a log line for a service
 * @param {string} service - Service name
 * @param {string} level - Severity (models.LevelInfo/...)
 * @param {string} stream - Source stream (models.StreamStdout/...)
 * @param {string} line - Text line
 * @returns {models.LogEntry} The stored entry with its assigned id
 */
func (ls *LogStore) Append(service, level, stream, line string) models.LogEntry {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	r := ls.ring(service)
	entry := models.LogEntry{
		Service: service,
		ID:      r.nextID,
		Time:    time.Now(),
		Level:   level,
		Stream:  stream,
		Line:    line,
	}
	r.nextID++

	if r.count < ls.capacity {
		r.entries[(r.head+r.count)%ls.capacity] = entry
		r.count++
	} else {
		// Full: overwrite the oldest slot.
		r.entries[r.head] = entry
		r.head = (r.head + 1) % ls.capacity
	}

	ls.seq++
	ls.cond.Broadcast()
	return entry
}

// Since returns all retained entries with id > afterID, in id order.
func (ls *LogStore) Since(service string, afterID int64) []models.LogEntry {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.sinceLocked(service, afterID)
}

func (ls *LogStore) sinceLocked(service string, afterID int64) []models.LogEntry {
	r := ls.rings[service]
	if r == nil || r.count == 0 {
		return nil
	}
	var out []models.LogEntry
	for i := 0; i < r.count; i++ {
		entry := r.entries[(r.head+i)%ls.capacity]
		if entry.ID > afterID {
			out = append(out, entry)
		}
	}
	return out
}

// Tail returns the newest n entries in id order.
func (ls *LogStore) Tail(service string, n int) []models.LogEntry {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	r := ls.rings[service]
	if r == nil || r.count == 0 || n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]models.LogEntry, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.entries[(r.head+i)%ls.capacity])
	}
	return out
}

// MinID returns the oldest retained id for a service, 0 when empty.
func (ls *LogStore) MinID(service string) int64 {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	r := ls.rings[service]
	if r == nil || r.count == 0 {
		return 0
	}
	return r.entries[r.head].ID
}

// MaxID returns the newest retained id for a service, 0 when empty.
func (ls *LogStore) MaxID(service string) int64 {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	r := ls.rings[service]
	if r == nil || r.count == 0 {
		return 0
	}
	return r.entries[(r.head+r.count-1)%ls.capacity].ID
}

// Len reports the number of retained entries, for capacity assertions.
func (ls *LogStore) Len(service string) int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	r := ls.rings[service]
	if r == nil {
		return 0
	}
	return r.count
}

// Services lists all services that have logged at least once, sorted.
func (ls *LogStore) Services() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]string, 0, len(ls.rings))
	for name := range ls.rings {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Seq returns the store-wide append counter, used as the cursor for
// all-services subscriptions.
func (ls *LogStore) Seq() int64 {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.seq
}

/**
 * Block until new entries arrive for a subscription or the timeout elapses
 * @param {string} service - Service name, or AllServices for the global view
 * @param {int64} after - Last seen id (per-service) or seq (AllServices)
 * @param {time.Duration} timeout - Bounded wait
 * @returns {bool} true when new data is available
 * @description
 * - Broadcast semantics: every waiter wakes on each append; slow readers
 *   catch up through Since with their own cursor
 * - The wait is always bounded, so a disconnected subscriber releases its
 *   goroutine within one timeout interval
 */
func (ls *LogStore) WaitForNew(service string, after int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	for !ls.hasNewLocked(service, after) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.AfterFunc(remaining, ls.cond.Broadcast)
		ls.cond.Wait()
		timer.Stop()
	}
	return true
}

func (ls *LogStore) hasNewLocked(service string, after int64) bool {
	if service == AllServices {
		return ls.seq > after
	}
	r := ls.rings[service]
	if r == nil || r.count == 0 {
		return false
	}
	newest := r.entries[(r.head+r.count-1)%ls.capacity]
	return newest.ID > after
}
