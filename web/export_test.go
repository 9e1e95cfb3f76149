package web

// CachedEntries reports how many users the evaluator holds.
func (e *Evaluator) CachedEntries() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}
