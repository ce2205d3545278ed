package spt

import (
	"sync"
)

// Session guards an engine for concurrent readers, such as the review
// service's HTTP handlers and the MQTT exclusion topic
type Session struct {
	mu       sync.RWMutex
	engine   *Engine
	result   *Result
	onChange func(*Result)
}

// NewSession wraps an engine and its current result
func NewSession(engine *Engine) *Session {
	return &Session{
		engine: engine,
		result: engine.Result(),
	}
}

// OnChange registers a callback invoked after every successful exclusion
func (s *Session) OnChange(fn func(*Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Result returns the current result
func (s *Session) Result() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Summary returns the current run summary
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result.Summary
}

// Config returns the engine configuration
func (s *Session) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Config()
}

// Track returns a retained track by id
func (s *Session) Track(id int) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Track(id)
}

// Region extracts the aggregated records inside a polygon
func (s *Session) Region(name string, vertices []Point) (Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Region(name, vertices)
}

// Exclude removes tracks and refreshes the result. It returns the ids that
// were actually removed.
func (s *Session) Exclude(ids ...int) []int {
	s.mu.Lock()
	removed := s.engine.Exclude(ids...)
	if len(removed) > 0 {
		s.result = s.engine.Result()
	}
	res := s.result
	onChange := s.onChange
	s.mu.Unlock()

	if len(removed) > 0 && onChange != nil {
		onChange(res)
	}
	return removed
}

// WriteOutputs rewrites the configured outputs from the current result
func (s *Session) WriteOutputs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.WriteOutputs(s.result)
}
