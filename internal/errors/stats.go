package errors

import "sync"

// ErrorStats tracks error counts by category for the monitoring surface.
type ErrorStats struct {
	mu               sync.Mutex
	TotalErrors      int
	ErrorsByCategory map[ErrorCategory]int
	RecentErrors     []*TradingError
	MaxRecentErrors  int
}

// NewErrorStats creates a new error statistics tracker
func NewErrorStats(maxRecentErrors int) *ErrorStats {
	return &ErrorStats{
		ErrorsByCategory: make(map[ErrorCategory]int),
		RecentErrors:     make([]*TradingError, 0, maxRecentErrors),
		MaxRecentErrors:  maxRecentErrors,
	}
}

// Record records an error in the statistics, evicting the oldest entry
// once the recent-error window is full.
func (es *ErrorStats) Record(err *TradingError) {
	if err == nil {
		return
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	es.TotalErrors++
	es.ErrorsByCategory[err.Category]++

	if len(es.RecentErrors) >= es.MaxRecentErrors && es.MaxRecentErrors > 0 {
		es.RecentErrors = es.RecentErrors[1:]
	}
	es.RecentErrors = append(es.RecentErrors, err)
}

// Snapshot returns a copy of the counters for reporting.
func (es *ErrorStats) Snapshot() (total int, byCategory map[ErrorCategory]int) {
	es.mu.Lock()
	defer es.mu.Unlock()

	byCategory = make(map[ErrorCategory]int, len(es.ErrorsByCategory))
	for k, v := range es.ErrorsByCategory {
		byCategory[k] = v
	}
	return es.TotalErrors, byCategory
}
