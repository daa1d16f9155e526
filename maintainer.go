package emmer

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Maintainer runs the background sweep that keeps the registry honest: it
// resends the cached packet for conversations that have gone quiet, times
// out and drops conversations that have exhausted their retry budget, and
// reaps conversations that have reached Completed. It is the Go analogue of
// the Python server's Performer; unlike the original it does not hold the
// registry lock across the whole sweep (Go's sync.Mutex is not reentrant),
// taking a Snapshot instead and operating on each entry independently.
type Maintainer struct {
	transport           Transport
	registry            *Registry
	log                 *logrus.Entry
	clock               clockFunc
	metrics             *Metrics
	resendTimeout       time.Duration
	retriesBeforeGiveup uint32
}

// NewMaintainer builds a Maintainer. clock defaults to time.Now when nil;
// metrics defaults to a fresh, unregistered Metrics when nil.
func NewMaintainer(transport Transport, registry *Registry, log *logrus.Entry, clock clockFunc, metrics *Metrics, resendTimeout time.Duration, retriesBeforeGiveup uint32) *Maintainer {
	if clock == nil {
		clock = defaultClock
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Maintainer{
		transport:           transport,
		registry:            registry,
		log:                 log.WithField("component", "maintainer"),
		clock:               clock,
		metrics:             metrics,
		resendTimeout:       resendTimeout,
		retriesBeforeGiveup: retriesBeforeGiveup,
	}
}

// Run sweeps the registry once per tick until ctx is canceled.
func (m *Maintainer) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep handles stale conversations and reaps completed ones. A panic in any
// single entry's handling is contained to that entry so one bad conversation
// cannot stall the whole sweep.
func (m *Maintainer) sweep() {
	for _, entry := range m.registry.Snapshot() {
		m.safeHandleEntry(entry)
	}
}

func (m *Maintainer) safeHandleEntry(entry registryEntry) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("maintainer sweep of one conversation panicked")
		}
	}()

	state, lastInteraction, retriesMade := entry.Conversation.snapshot()

	if state == Completed {
		m.registry.Remove(entry.Host, entry.Port)
		m.metrics.Reaped.Inc()
		m.log.WithFields(logrus.Fields{"host": entry.Host, "port": entry.Port}).Debug("reaped completed conversation")
		return
	}

	if m.clock().Sub(lastInteraction) < m.resendTimeout {
		return
	}

	if retriesMade < m.retriesBeforeGiveup {
		m.retry(entry)
		return
	}

	m.timeout(entry)
}

func (m *Maintainer) retry(entry registryEntry) {
	packet := entry.Conversation.MarkRetry()
	if _, ok := packet.(NoOp); ok {
		return
	}
	addr := &net.UDPAddr{IP: net.ParseIP(entry.Host), Port: entry.Port}
	if _, err := m.transport.WriteTo(Serialize(packet), addr); err != nil {
		m.log.WithError(err).Warn("resend failed")
		return
	}
	m.metrics.Retransmits.Inc()
	m.log.WithFields(logrus.Fields{"host": entry.Host, "port": entry.Port}).Debug("resent cached packet")
}

func (m *Maintainer) timeout(entry registryEntry) {
	packet := ErrorPacket{Code: ErrNotDefined, Message: "Conversation Timed Out"}
	addr := &net.UDPAddr{IP: net.ParseIP(entry.Host), Port: entry.Port}
	if _, err := m.transport.WriteTo(Serialize(packet), addr); err != nil {
		m.log.WithError(err).Warn("timeout notice failed to send")
	}
	m.registry.Remove(entry.Host, entry.Port)
	m.metrics.Timeouts.Inc()
	m.log.WithFields(logrus.Fields{"host": entry.Host, "port": entry.Port}).Info("conversation timed out and was dropped")
}
