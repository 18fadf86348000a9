package hub

import "sync"

// Table is the subscription table: a forward index from connection to
// subscribed symbols and a reverse index from symbol to interested
// connections. Both indexes mutate under one lock, so an observer sees
// either the pre- or post-mutation state of a call, never a partial edge.
type Table struct {
	mu       sync.RWMutex
	bySymbol map[string]map[string]struct{} // symbol -> connection ids
	byConn   map[string]map[string]struct{} // connection id -> symbols
}

func NewTable() *Table {
	return &Table{
		bySymbol: make(map[string]map[string]struct{}),
		byConn:   make(map[string]map[string]struct{}),
	}
}

// Subscribe adds edges for the given canonical symbols and returns the
// subset that was newly added. Re-subscribing an already-subscribed symbol
// is a no-op.
func (t *Table) Subscribe(connID string, symbols []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs := t.byConn[connID]
	if subs == nil {
		subs = make(map[string]struct{})
		t.byConn[connID] = subs
	}

	var added []string
	for _, sym := range symbols {
		if _, ok := subs[sym]; ok {
			continue
		}
		subs[sym] = struct{}{}
		conns := t.bySymbol[sym]
		if conns == nil {
			conns = make(map[string]struct{})
			t.bySymbol[sym] = conns
		}
		conns[connID] = struct{}{}
		added = append(added, sym)
	}
	return added
}

// Unsubscribe removes edges for the given canonical symbols and returns the
// subset that actually existed. Unsubscribing a non-subscribed symbol is a
// no-op, not an error.
func (t *Table) Unsubscribe(connID string, symbols []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs, ok := t.byConn[connID]
	if !ok {
		return nil
	}

	var removed []string
	for _, sym := range symbols {
		if _, ok := subs[sym]; !ok {
			continue
		}
		delete(subs, sym)
		t.dropEdge(sym, connID)
		removed = append(removed, sym)
	}
	return removed
}

// SubscribersOf returns a snapshot of the connections subscribed to a
// symbol, safe to iterate while subscribe/unsubscribe calls are in flight.
func (t *Table) SubscribersOf(symbol string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := t.bySymbol[symbol]
	if len(conns) == 0 {
		return nil
	}
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// Symbols returns a snapshot of a connection's current subscription set.
func (t *Table) Symbols(connID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	subs := t.byConn[connID]
	if len(subs) == 0 {
		return nil
	}
	out := make([]string, 0, len(subs))
	for sym := range subs {
		out = append(out, sym)
	}
	return out
}

// RemoveConnection atomically removes every edge of a connection and
// returns the symbols it was subscribed to.
func (t *Table) RemoveConnection(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs, ok := t.byConn[connID]
	if !ok {
		return nil
	}
	delete(t.byConn, connID)

	removed := make([]string, 0, len(subs))
	for sym := range subs {
		t.dropEdge(sym, connID)
		removed = append(removed, sym)
	}
	return removed
}

// dropEdge removes connID from a symbol's reverse-index entry. Callers hold t.mu.
func (t *Table) dropEdge(symbol, connID string) {
	conns := t.bySymbol[symbol]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(t.bySymbol, symbol)
	}
}
