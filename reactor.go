package emmer

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Transport is the datagram abstraction the reactor consumes — satisfied
// directly by *net.UDPConn (and any net.PacketConn). Keeping it as an
// interface, rather than depending on net.PacketConn concretely, is what
// keeps the UDP socket implementation an external collaborator per spec §1.
type Transport interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	WriteTo(b []byte, addr net.Addr) (n int, err error)
}

const defaultWorkers = 8

// Reactor is the datagram receive loop: it classifies each inbound packet,
// dispatches it to a new or existing conversation, and sends the reply.
// Ingress is served by one goroutine; processing is handed off to a bounded
// worker pool so a slow handler cannot starve the read loop (spec §9 flags
// the source's one-goroutine-per-datagram model as a flood vulnerability —
// this is the recommended redesign).
type Reactor struct {
	transport Transport
	registry  *Registry
	routes    *RouteTable
	log       *logrus.Entry
	clock     clockFunc
	metrics   *Metrics
	workers   int

	jobs chan datagram
}

type datagram struct {
	data []byte
	addr net.Addr
}

// NewReactor builds a Reactor with a bounded worker pool. workers <= 0 uses
// defaultWorkers; metrics defaults to a fresh, unregistered Metrics when nil.
func NewReactor(transport Transport, registry *Registry, routes *RouteTable, log *logrus.Entry, workers int, metrics *Metrics) *Reactor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Reactor{
		transport: transport,
		registry:  registry,
		routes:    routes,
		log:       log.WithField("component", "reactor"),
		clock:     defaultClock,
		metrics:   metrics,
		workers:   workers,
		jobs:      make(chan datagram, workers*4),
	}
}

// Run starts the worker pool and then blocks receiving datagrams until ctx
// is canceled or the transport reports that it is closed (net.ErrClosed).
// Other receive errors are logged and the loop continues.
func (r *Reactor) Run(ctx context.Context) error {
	for i := 0; i < r.workers; i++ {
		go r.worker(ctx)
	}

	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			close(r.jobs)
			return ctx.Err()
		}

		n, addr, err := r.transport.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				close(r.jobs)
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				close(r.jobs)
				return err
			}
			r.log.WithError(err).Warn("receive error")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case r.jobs <- datagram{data: data, addr: addr}:
		case <-ctx.Done():
			close(r.jobs)
			return ctx.Err()
		}
	}
}

func (r *Reactor) worker(ctx context.Context) {
	for {
		select {
		case d, ok := <-r.jobs:
			if !ok {
				return
			}
			r.handle(d.data, d.addr)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reactor) handle(data []byte, addr net.Addr) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		r.log.WithError(err).Warn("could not parse peer address")
		return
	}

	packet := Parse(data)
	if _, ok := packet.(NoOp); ok {
		r.log.WithFields(logrus.Fields{"host": host, "port": port}).Debug("dropped unparseable datagram")
		return
	}

	conv := r.conversationFor(host, port, packet)
	if conv == nil {
		// Non-request packet addressed to an unknown (host, port): the spec
		// treats this as if the conversation yielded NoOp — silently drop.
		return
	}

	reply := conv.Handle(packet)
	if _, ok := reply.(NoOp); ok {
		return
	}

	if _, err := r.transport.WriteTo(Serialize(reply), addr); err != nil {
		r.log.WithError(err).Warn("send error")
	}
}

// conversationFor creates and registers a fresh conversation for a RRQ/WRQ
// (overwriting any stale prior entry for the same client tuple), or looks up
// the existing one for anything else.
func (r *Reactor) conversationFor(host string, port int, packet Packet) *Conversation {
	switch packet.(type) {
	case ReadRequest, WriteRequest:
		conv := NewConversation(host, port, r.routes, r.log, r.clock, r.metrics)
		r.registry.Insert(host, port, conv)
		return conv
	default:
		return r.registry.Lookup(host, port)
	}
}

func splitHostPort(addr net.Addr) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
