package emmer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Server wraps the conversation registry, route table, reactor, and
// maintainer into the single object applications construct. It is the Go
// analogue of the original service's own top-level Emmer class: OnRead and
// OnWrite play the role of its route_read/route_write decorators, and Run
// plays the role of its run method.
type Server struct {
	cfg    Config
	log    *logrus.Entry
	routes *RouteTable

	registry   *Registry
	reactor    *Reactor
	maintainer *Maintainer
	collector  *RegistryCollector
	metrics    *Metrics

	conn *net.UDPConn
}

// New constructs a Server from cfg. Routes are registered with OnRead/OnWrite
// before calling Run.
func New(cfg Config) *Server {
	log := logrus.StandardLogger().WithField("component", "emmer")
	registry := NewRegistry()
	return &Server{
		cfg:       cfg,
		log:       log,
		routes:    NewRouteTable(),
		registry:  registry,
		collector: NewRegistryCollector(registry),
		metrics:   NewMetrics(),
	}
}

// OnRead registers a read route; see RouteTable.OnRead.
func (s *Server) OnRead(filenamePattern string, handler ReadHandler) {
	s.routes.OnRead(filenamePattern, handler)
}

// OnWrite registers a write route; see RouteTable.OnWrite.
func (s *Server) OnWrite(filenamePattern string, handler WriteHandler) {
	s.routes.OnWrite(filenamePattern, handler)
}

// Collector returns the server's prometheus.Collector, for registration on
// whatever prometheus.Registry the caller is already using.
func (s *Server) Collector() *RegistryCollector {
	return s.collector
}

// PushMetrics returns the server's push-style counters (retransmits,
// timeouts, reaped, bytes transferred), for registration alongside Collector
// via metrics.Collectors().
func (s *Server) PushMetrics() *Metrics {
	return s.metrics
}

// DebugHandler returns an http.Handler that reports the live conversation
// table as JSON — the debug endpoint cmd/emmerctl polls.
func (s *Server) DebugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := s.registry.Snapshot()
		type convView struct {
			Host     string `json:"host"`
			Port     int    `json:"port"`
			State    string `json:"state"`
			Filename string `json:"filename"`
		}
		views := make([]convView, 0, len(entries))
		for _, e := range entries {
			views = append(views, convView{
				Host:     e.Host,
				Port:     e.Port,
				State:    e.Conversation.State().String(),
				Filename: e.Conversation.Filename(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(views); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// DropHandler returns an http.Handler that removes a single conversation from
// the registry by host/port query parameters -- the mutating endpoint
// cmd/emmerctl's drop command calls. It responds 404 if no such conversation
// is live.
func (s *Server) DropHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.URL.Query().Get("host")
		portStr := r.URL.Query().Get("port")
		port, err := strconv.Atoi(portStr)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid port %q: %v", portStr, err), http.StatusBadRequest)
			return
		}

		if s.registry.Lookup(host, port) == nil {
			http.Error(w, fmt.Sprintf("no conversation for %s:%d", host, port), http.StatusNotFound)
			return
		}

		s.registry.Remove(host, port)
		s.log.WithFields(logrus.Fields{"host": host, "port": port}).Info("conversation dropped by operator")
		w.WriteHeader(http.StatusOK)
	})
}

// Run validates cfg, binds the UDP socket, and runs the reactor and
// maintainer until ctx is canceled or the reactor returns an error. The
// maintainer returns no error; it stops when ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.Host), Port: s.cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("emmer: listen %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	s.conn = conn
	defer conn.Close()

	s.log.WithFields(logrus.Fields{"host": s.cfg.Host, "port": s.cfg.Port}).Info("TFTP server listening")
	logStartupDiagnostics(s.log, conn)

	s.reactor = NewReactor(conn, s.registry, s.routes, s.log, s.cfg.Workers, s.metrics)
	s.maintainer = NewMaintainer(conn, s.registry, s.log, defaultClock, s.metrics, s.cfg.ResendTimeout, s.cfg.RetriesBeforeGiveup)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.reactor.Run(ctx)
	}()
	go s.maintainer.Run(ctx, s.cfg.MaintainerTick)

	select {
	case <-ctx.Done():
		conn.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
