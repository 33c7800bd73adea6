// Package transport implements TCP transport for AMS/ADS communication:
// socket ownership, request/response correlation and the reconnection
// state machine.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrpasztoradam/goadsrt/internal/ams"
)

// Connection-level failures. Command-level failures are ads.Error values and
// never originate here.
var (
	// ErrConnectFailed reports that no session could be established within
	// the connect timeout.
	ErrConnectFailed = errors.New("transport: connect failed")

	// ErrNotConnected reports a send attempted while the transport is not
	// in the connected state.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrConnectionLost reports that the socket failed while a request was
	// in flight. All pending requests at that moment fail with this.
	ErrConnectionLost = errors.New("transport: connection lost")

	// ErrTimeout reports that no response arrived within the request's
	// deadline. The connection itself is unaffected.
	ErrTimeout = errors.New("transport: request timed out")

	// ErrClosed reports use of a transport after Close.
	ErrClosed = errors.New("transport: closed")
)

// Timeouts configures the maximum wait per communication phase.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

// Default timeouts. Requests are never issued without an effective ceiling.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

// WithDefaults fills zero fields with the default values.
func (t Timeouts) WithDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultConnectTimeout
	}
	if t.Read <= 0 {
		t.Read = DefaultReadTimeout
	}
	if t.Write <= 0 {
		t.Write = DefaultWriteTimeout
	}
	return t
}

// Source specifies the AMS address the client presents as its own.
type Source struct {
	// Auto derives the NetID from the local IP address each time the
	// socket connects, since the local address may change across
	// reconnects.
	Auto bool
	Addr ams.Addr
}

// AutoSourcePort is the AMS port used for auto-derived source addresses.
const AutoSourcePort ams.Port = 58913

// AutoSource derives the source address from the local socket address.
func AutoSource() Source {
	return Source{Auto: true}
}

// FixedSource uses the given address verbatim.
func FixedSource(addr ams.Addr) Source {
	return Source{Addr: addr}
}

func (s Source) resolve(local net.Addr) ams.Addr {
	if !s.Auto {
		return s.Addr
	}
	if tcp, ok := local.(*net.TCPAddr); ok {
		if ip4 := tcp.IP.To4(); ip4 != nil {
			return ams.Addr{
				NetID: ams.NetID{ip4[0], ip4[1], ip4[2], ip4[3], 1, 1},
				Port:  AutoSourcePort,
			}
		}
	}
	return ams.Addr{NetID: ams.NetID{127, 0, 0, 1, 1, 1}, Port: AutoSourcePort}
}

// Backoff bounds the delay between reconnection attempts. The delay doubles
// after each failed attempt, from Min up to Max.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBackoff is used when the configuration leaves Backoff zero.
var DefaultBackoff = Backoff{Min: 250 * time.Millisecond, Max: 10 * time.Second}

func (b Backoff) withDefaults() Backoff {
	if b.Min <= 0 {
		b.Min = DefaultBackoff.Min
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	return b
}

func (b Backoff) next(cur time.Duration) time.Duration {
	cur *= 2
	if cur > b.Max {
		cur = b.Max
	}
	return cur
}

// Logger is the subset of the facade logger the transport needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State of the reconnection machine. Requests may be sent only while
// Connected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config collects the connection parameters of a Conn.
type Config struct {
	// Address is the TCP target, host:port.
	Address  string
	Timeouts Timeouts
	Source   Source
	Backoff  Backoff
	Logger   Logger

	// OnStateChange, if set, is called after every state transition.
	// Called from transport goroutines; must not block.
	OnStateChange func(State)
}

type result struct {
	pkt *ams.Packet
	err error
}

// pendingRequest is the single-use slot an in-flight invoke id resolves to.
// Expiry is driven by the waiting caller's timer, not tracked here.
type pendingRequest struct {
	ch chan result
}

// Conn owns the socket. The write path is shared and serialized by writeMu;
// the read path is owned exclusively by the Reader.
type Conn struct {
	cfg Config
	log Logger

	mu      sync.Mutex // guards netConn and source
	netConn net.Conn
	source  ams.Addr

	state   atomic.Int32
	session atomic.Uint64

	invokeID  atomic.Uint32
	pendingMu sync.Mutex
	pending   map[uint32]*pendingRequest

	writeMu sync.Mutex

	notifyMu sync.RWMutex
	notify   func(*ams.Packet)

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial establishes the initial connection. It does not start the Reader;
// the caller obtains it via Reader and runs it on an execution context of
// its choosing. Until the Reader runs, requests time out.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: address is empty", ErrConnectFailed)
	}
	cfg.Timeouts = cfg.Timeouts.WithDefaults()
	cfg.Backoff = cfg.Backoff.withDefaults()
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	c := &Conn{
		cfg:     cfg,
		log:     cfg.Logger,
		pending: make(map[uint32]*pendingRequest),
		closed:  make(chan struct{}),
	}

	dialer := &net.Dialer{Timeout: cfg.Timeouts.Connect}
	nc, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectFailed, cfg.Address, err)
	}

	c.establish(nc)
	return c, nil
}

// establish installs a freshly connected socket, resolves the source
// address and bumps the session id.
func (c *Conn) establish(nc net.Conn) {
	c.mu.Lock()
	c.netConn = nc
	c.source = c.cfg.Source.resolve(nc.LocalAddr())
	c.mu.Unlock()

	c.session.Add(1)
	c.setState(StateConnected)
	c.log.Info("transport: connected",
		"address", c.cfg.Address, "source", c.Source().String(), "session", c.SessionID())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// State returns the current state of the reconnection machine.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// SessionID identifies one established socket session. It changes on every
// successful (re)connect; cached symbol handles compare it to detect that
// they must re-resolve.
func (c *Conn) SessionID() uint64 {
	return c.session.Load()
}

// Source returns the AMS address resolved for the current session.
func (c *Conn) Source() ams.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// SetNotificationHandler sets the sink for device notification frames.
// The handler runs on the Reader goroutine and must not block.
func (c *Conn) SetNotificationHandler(handler func(*ams.Packet)) {
	c.notifyMu.Lock()
	c.notify = handler
	c.notifyMu.Unlock()
}

// NextInvokeID allocates an invoke id that is not shared with any request
// still pending. Allocation is monotonic and wraps.
func (c *Conn) NextInvokeID() uint32 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for {
		id := c.invokeID.Add(1)
		if id == 0 {
			continue
		}
		if _, busy := c.pending[id]; !busy {
			return id
		}
	}
}

// Do sends a request frame and blocks the calling goroutine until the
// matching response arrives, the timeout elapses, the context is done, or
// the transport closes. timeout must be positive; the facade enforces a
// default ceiling before calling.
func (c *Conn) Do(ctx context.Context, req *ams.Packet, timeout time.Duration) (*ams.Packet, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = c.cfg.Timeouts.Read
	}

	invokeID := req.Header.InvokeID
	pr := &pendingRequest{
		ch: make(chan result, 1),
	}
	c.pendingMu.Lock()
	c.pending[invokeID] = pr
	c.pendingMu.Unlock()

	if err := c.send(req); err != nil {
		c.unregister(invokeID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pr.ch:
		return res.pkt, res.err
	case <-timer.C:
		c.unregister(invokeID)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.unregister(invokeID)
		return nil, ctx.Err()
	case <-c.closed:
		c.unregister(invokeID)
		return nil, ErrClosed
	}
}

func (c *Conn) send(req *ams.Packet) error {
	c.mu.Lock()
	nc := c.netConn
	c.mu.Unlock()
	if nc == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := nc.SetWriteDeadline(time.Now().Add(c.cfg.Timeouts.Write)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if err := ams.WritePacket(nc, req); err != nil {
		// The socket can no longer be trusted; closing it wakes the
		// Reader, which drives reconnection.
		c.killConn()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (c *Conn) unregister(invokeID uint32) {
	c.pendingMu.Lock()
	delete(c.pending, invokeID)
	c.pendingMu.Unlock()
}

// killConn closes the current socket without changing state; the Reader
// observes the read failure and performs the full teardown.
func (c *Conn) killConn() {
	c.mu.Lock()
	nc := c.netConn
	c.mu.Unlock()
	if nc != nil {
		nc.Close()
	}
}

// teardown moves the machine to Disconnected, retires the socket and
// resolves every pending request with ErrConnectionLost. Pending requests
// are never left to expire by timeout here.
func (c *Conn) teardown(cause error) {
	if c.State() == StateClosed {
		return
	}
	c.setState(StateDisconnected)

	c.mu.Lock()
	if c.netConn != nil {
		c.netConn.Close()
		c.netConn = nil
	}
	c.mu.Unlock()

	c.sweepPending(ErrConnectionLost)

	if cause != nil {
		c.log.Warn("transport: connection lost", "address", c.cfg.Address, "error", cause.Error())
	}
}

func (c *Conn) sweepPending(err error) {
	c.pendingMu.Lock()
	swept := len(c.pending)
	for id, pr := range c.pending {
		pr.ch <- result{err: err}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if swept > 0 {
		c.log.Debug("transport: swept pending requests", "count", swept)
	}
}

// reconnect retries until a new session is established or the transport is
// closed. Returns false when closed.
func (c *Conn) reconnect() bool {
	c.setState(StateConnecting)
	delay := c.cfg.Backoff.Min

	for attempt := 1; ; attempt++ {
		select {
		case <-c.closed:
			return false
		default:
		}

		nc, err := net.DialTimeout("tcp", c.cfg.Address, c.cfg.Timeouts.Connect)
		if err == nil {
			c.establish(nc)
			return true
		}

		c.log.Debug("transport: reconnect attempt failed",
			"address", c.cfg.Address, "attempt", attempt, "error", err.Error(), "retry_in", delay.String())

		select {
		case <-c.closed:
			return false
		case <-time.After(delay):
		}
		delay = c.cfg.Backoff.next(delay)
	}
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close tears the transport down for good: the socket is closed, the Reader
// exits, and every pending request resolves with ErrClosed. Safe to call
// multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closed)

		c.mu.Lock()
		if c.netConn != nil {
			c.netConn.Close()
			c.netConn = nil
		}
		c.mu.Unlock()

		c.sweepPending(ErrClosed)
		c.log.Info("transport: closed", "address", c.cfg.Address)
	})
	return nil
}
