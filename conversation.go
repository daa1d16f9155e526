package emmer

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// State is a Conversation's position in the TFTP lockstep state machine.
type State int

//go:generate stringer -type=State

const (
	Uninitialized State = iota
	Reading
	Writing
	Completed
)

// Conversation is the per-client protocol driver: it lock-steps block/ACK
// exchanges, enforces block-number ordering, caches the last outbound packet
// for retransmission, and transitions through Uninitialized -> {Reading,
// Writing} -> Completed. Every exported method is safe for concurrent use;
// all of them serialize on a single per-conversation mutex.
type Conversation struct {
	mu sync.Mutex

	ClientHost string
	ClientPort int
	ID         xid.ID

	routes  *RouteTable
	log     *logrus.Entry
	clock   func() time.Time
	metrics *Metrics

	state        State
	filename     string
	mode         string
	currentBlock uint16

	cachedPacket Packet

	readBuffer   *ReadBuffer
	writeBuffer  *WriteBuffer
	writeHandler WriteHandler

	retriesMade     uint32
	lastInteraction time.Time
}

// NewConversation creates a fresh, Uninitialized conversation for a client.
// log is the parent logger, to which NewConversation adds conv_id, host and
// port fields; clock defaults to time.Now when nil; metrics
// defaults to a fresh, unregistered Metrics when nil.
func NewConversation(host string, port int, routes *RouteTable, log *logrus.Entry, clock func() time.Time, metrics *Metrics) *Conversation {
	if clock == nil {
		clock = time.Now
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	id := xid.New()
	c := &Conversation{
		ClientHost:      host,
		ClientPort:      port,
		ID:              id,
		routes:          routes,
		clock:           clock,
		metrics:         metrics,
		state:           Uninitialized,
		lastInteraction: clock(),
	}
	c.log = log.WithFields(logrus.Fields{
		"conv_id": id.String(),
		"host":    host,
		"port":    port,
	})
	return c
}

// State returns the conversation's current state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Filename returns the filename captured from the initial request, or "" if
// the conversation is still Uninitialized.
func (c *Conversation) Filename() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filename
}

// snapshot returns the fields the maintainer needs without exposing the
// conversation's internal lock to the caller.
func (c *Conversation) snapshot() (state State, lastInteraction time.Time, retriesMade uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastInteraction, c.retriesMade
}

// Handle advances the state machine for one inbound packet and returns the
// reply to send (possibly NoOp). It is the conversation's single entry
// point; the reactor calls it once per datagram addressed to this client.
func (c *Conversation) Handle(p Packet) Packet {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.dispatch(p)

	if _, isError := out.(ErrorPacket); !isError {
		c.cachedPacket = out
		c.retriesMade = 0
		c.lastInteraction = c.clock()
	}
	return out
}

// dispatch recovers from a panicking handler (spec §7: handler exceptions
// are caught and turned into a completed Error(0) conversation) and runs the
// state machine for the current state.
func (c *Conversation) dispatch(p Packet) (out Packet) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", fmt.Sprint(r)).Error("handler panicked")
			c.state = Completed
			out = ErrorPacket{Code: ErrNotDefined, Message: "Internal handler error"}
		}
	}()

	switch c.state {
	case Uninitialized:
		return c.handleInitial(p)
	case Reading:
		return c.handleReading(p)
	case Writing:
		return c.handleWriting(p)
	default:
		// Completed is terminal; the maintainer reaps it before another
		// datagram can reach it in practice, but if one does, say nothing.
		return NoOp{}
	}
}

func (c *Conversation) handleInitial(p Packet) Packet {
	switch req := p.(type) {
	case ReadRequest:
		return c.handleInitialRead(req)
	case WriteRequest:
		return c.handleInitialWrite(req)
	default:
		c.state = Completed
		return ErrorPacket{
			Code:    ErrUnknownTransferID,
			Message: fmt.Sprintf("Unknown transfer tid. Host: %s, Port: %d", c.ClientHost, c.ClientPort),
		}
	}
}

func (c *Conversation) handleInitialRead(req ReadRequest) Packet {
	c.filename = req.Filename
	c.mode = req.Mode

	handler := c.routes.ResolveRead(req.Filename)
	if handler == nil {
		c.state = Completed
		c.log.WithField("filename", req.Filename).Info("read request: no matching route")
		return ErrorPacket{
			Code:    ErrFileNotFound,
			Message: fmt.Sprintf("File not found. Host: %s, Port: %d", c.ClientHost, c.ClientPort),
		}
	}

	data, err := handler(c.ClientHost, c.ClientPort, req.Filename)
	if err != nil {
		c.state = Completed
		c.log.WithError(err).Warn("read handler returned an error")
		return ErrorPacket{
			Code:    ErrFileNotFound,
			Message: fmt.Sprintf("File not found. Host: %s, Port: %d", c.ClientHost, c.ClientPort),
		}
	}

	c.readBuffer = NewReadBuffer(data)
	c.currentBlock = 1
	c.state = Reading
	block := c.readBuffer.Block(1)
	c.metrics.BytesTransferred.Add(float64(len(block)))
	return Data{Block: 1, Payload: block}
}

func (c *Conversation) handleInitialWrite(req WriteRequest) Packet {
	c.filename = req.Filename
	c.mode = req.Mode
	c.currentBlock = 0

	handler := c.routes.ResolveWrite(req.Filename)
	if handler == nil {
		c.state = Completed
		c.log.WithField("filename", req.Filename).Info("write request: no matching route")
		return ErrorPacket{
			Code:    ErrAccessViolation,
			Message: fmt.Sprintf("Access violation. Host: %s, Port: %d", c.ClientHost, c.ClientPort),
		}
	}

	c.writeHandler = handler
	c.writeBuffer = NewWriteBuffer()
	c.state = Writing
	return Ack{Block: 0}
}

func (c *Conversation) handleReading(p Packet) Packet {
	ack, ok := p.(Ack)
	if !ok {
		return ErrorPacket{
			Code: ErrNotDefined,
			Message: fmt.Sprintf("Illegal packet type given current state of conversation. Host: %s, Port: %d.",
				c.ClientHost, c.ClientPort),
		}
	}

	if ack.Block != c.currentBlock {
		return NoOp{}
	}

	if ack.Block == c.readBuffer.BlockCount() {
		c.state = Completed
		c.log.WithField("filename", c.filename).Debug("read request succeeded")
		return NoOp{}
	}

	c.currentBlock++
	block := c.readBuffer.Block(c.currentBlock)
	c.metrics.BytesTransferred.Add(float64(len(block)))
	return Data{Block: c.currentBlock, Payload: block}
}

func (c *Conversation) handleWriting(p Packet) Packet {
	data, ok := p.(Data)
	if !ok {
		return ErrorPacket{
			Code: ErrNotDefined,
			Message: fmt.Sprintf("Illegal packet type given current state of conversation. Host: %s, Port: %d.",
				c.ClientHost, c.ClientPort),
		}
	}

	if data.Block != c.currentBlock+1 {
		return NoOp{}
	}

	c.writeBuffer.Append(data.Payload)
	c.metrics.BytesTransferred.Add(float64(len(data.Payload)))
	block := data.Block

	if len(data.Payload) < blockSize {
		c.state = Completed
		c.log.WithField("filename", c.filename).Debug("write request succeeded")
		if err := c.writeHandler(c.ClientHost, c.ClientPort, c.filename, c.writeBuffer.Bytes()); err != nil {
			c.log.WithError(err).Warn("write handler returned an error")
		}
	}

	c.currentBlock++
	return Ack{Block: block}
}

// MarkRetry records a retransmission attempt and returns the packet to
// resend. It is the maintainer's hook into an otherwise private
// conversation.
func (c *Conversation) MarkRetry() Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastInteraction = c.clock()
	c.retriesMade++
	if c.cachedPacket == nil {
		return NoOp{}
	}
	return c.cachedPacket
}
