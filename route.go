package emmer

import "regexp"

// ReadHandler serves a read request's filename with the bytes to return to
// the client. It is invoked synchronously at RRQ time, before any DATA is
// sent, so the full payload is realized up front and can be retransmitted
// block by block without re-invoking the handler.
type ReadHandler func(host string, port int, filename string) ([]byte, error)

// WriteHandler receives the full, reassembled payload of a write request. It
// is invoked once, at end-of-transfer.
type WriteHandler func(host string, port int, filename string, data []byte) error

type readRoute struct {
	pattern *regexp.Regexp
	handler ReadHandler
}

type writeRoute struct {
	pattern *regexp.Regexp
	handler WriteHandler
}

// RouteTable holds the ordered read and write rules a Server dispatches
// requests through. The first rule whose pattern matches a filename wins.
type RouteTable struct {
	readRoutes  []readRoute
	writeRoutes []writeRoute
}

// NewRouteTable returns an empty route table.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// OnRead appends a read rule. filenamePattern is compiled as a regular
// expression and matched the way Python's re.match does: anchored at the
// start of the filename, unanchored at the end.
func (t *RouteTable) OnRead(filenamePattern string, handler ReadHandler) {
	t.readRoutes = append(t.readRoutes, readRoute{
		pattern: regexp.MustCompile(filenamePattern),
		handler: handler,
	})
}

// OnWrite appends a write rule; see OnRead for pattern semantics.
func (t *RouteTable) OnWrite(filenamePattern string, handler WriteHandler) {
	t.writeRoutes = append(t.writeRoutes, writeRoute{
		pattern: regexp.MustCompile(filenamePattern),
		handler: handler,
	})
}

// ResolveRead returns the handler of the first read rule matching filename,
// or nil if none match.
func (t *RouteTable) ResolveRead(filename string) ReadHandler {
	for _, r := range t.readRoutes {
		if matchesPrefix(r.pattern, filename) {
			return r.handler
		}
	}
	return nil
}

// ResolveWrite returns the handler of the first write rule matching
// filename, or nil if none match.
func (t *RouteTable) ResolveWrite(filename string) WriteHandler {
	for _, r := range t.writeRoutes {
		if matchesPrefix(r.pattern, filename) {
			return r.handler
		}
	}
	return nil
}

// matchesPrefix reports whether re matches filename starting at index 0,
// without requiring the match to consume the whole string — the same
// semantics as Python's re.match.
func matchesPrefix(re *regexp.Regexp, filename string) bool {
	loc := re.FindStringIndex(filename)
	return loc != nil && loc[0] == 0
}
