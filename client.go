// Package goadsrt provides a reconnecting Go client for ADS/AMS communication
// with industrial PLCs over TCP.
package goadsrt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrpasztoradam/goadsrt/internal/ads"
	"github.com/mrpasztoradam/goadsrt/internal/ams"
	"github.com/mrpasztoradam/goadsrt/internal/transport"
)

// Re-exported protocol types. NetID is the 6-byte AMS address of a logical
// participant; Addr pairs it with an AMS port.
type (
	NetID    = ams.NetID
	Port     = ams.Port
	Addr     = ams.Addr
	Timeouts = transport.Timeouts
	Source   = transport.Source

	// AdsState is the run state reported by a device.
	AdsState = ads.ADSState

	// ConnState is the state of the transport's reconnection machine.
	ConnState = transport.State
)

// DefaultTCPPort is the well-known TCP port an ADS router listens on.
const DefaultTCPPort = ams.DefaultTCPPort

// Commonly used AMS ports.
const (
	PortSystemService = ams.PortSystemService
	PortPLCRuntime1   = ams.PortPLCRuntime1
	PortPLCRuntime2   = ams.PortPLCRuntime2
)

// Device run states, re-exported for callers of Device.ReadState.
const (
	StateInvalid = ads.StateInvalid
	StateIdle    = ads.StateIdle
	StateReset   = ads.StateReset
	StateInit    = ads.StateInit
	StateStart   = ads.StateStart
	StateRun     = ads.StateRun
	StateStop    = ads.StateStop
	StateConfig  = ads.StateConfig
	StateError   = ads.StateError
)

// Transport states observable via Client.ConnState.
const (
	ConnDisconnected = transport.StateDisconnected
	ConnConnecting   = transport.StateConnecting
	ConnConnected    = transport.StateConnected
	ConnClosed       = transport.StateClosed
)

// ParseNetID parses a dot-separated NetID string like "192.168.1.100.1.1".
func ParseNetID(s string) (NetID, error) {
	return ams.ParseNetID(s)
}

// NewAddr returns the Addr for the given NetID and AMS port.
func NewAddr(netID NetID, port Port) Addr {
	return ams.NewAddr(netID, port)
}

// AutoSource derives the local AMS address from the local IP each time the
// socket connects.
func AutoSource() Source {
	return transport.AutoSource()
}

// FixedSource uses the given AMS address as the source verbatim.
func FixedSource(addr Addr) Source {
	return transport.FixedSource(addr)
}

// Client is the facade over one ADS transport session. It is safe for
// concurrent use: any number of goroutines may issue requests; each blocks
// only for its own response or deadline.
type Client struct {
	conn    *transport.Conn
	timeout Timeouts
	log     Logger
	metrics Metrics

	subsMu sync.RWMutex
	subs   map[uint32]*Subscription
}

// Reader is the read loop of a Client. Exactly one goroutine (or thread,
// via runtime.LockOSThread) must call Run; the embedding application
// chooses where, so that scheduling stays under its control. Requests
// issued before Run executes are well-defined but will time out.
type Reader struct {
	inner *transport.Reader
}

// Run blocks, reading frames and driving reconnection, until the Client is
// closed.
func (r *Reader) Run() {
	r.inner.Run()
}

// Option configures a Client.
type Option func(*clientConfig) error

type clientConfig struct {
	address  string
	source   Source
	timeouts Timeouts
	backoff  transport.Backoff
	logger   Logger
	metrics  Metrics
}

// WithTarget sets the TCP address of the ADS router, host:port (required).
func WithTarget(address string) Option {
	return func(c *clientConfig) error {
		if address == "" {
			return fmt.Errorf("goadsrt: target address cannot be empty")
		}
		c.address = address
		return nil
	}
}

// WithSource sets the source AMS address policy (optional, defaults to Auto).
func WithSource(src Source) Option {
	return func(c *clientConfig) error {
		c.source = src
		return nil
	}
}

// WithTimeouts sets the per-phase timeouts (optional). Zero fields keep
// their defaults; there is no way to disable the ceilings entirely.
func WithTimeouts(t Timeouts) Option {
	return func(c *clientConfig) error {
		if t.Connect < 0 || t.Read < 0 || t.Write < 0 {
			return fmt.Errorf("goadsrt: timeouts must not be negative")
		}
		c.timeouts = t
		return nil
	}
}

// WithReconnectBackoff bounds the delay between reconnection attempts
// (optional).
func WithReconnectBackoff(min, max time.Duration) Option {
	return func(c *clientConfig) error {
		if min <= 0 || max < min {
			return fmt.Errorf("goadsrt: invalid backoff bounds")
		}
		c.backoff = transport.Backoff{Min: min, Max: max}
		return nil
	}
}

// WithLogger sets the logger (optional, defaults to no-op).
func WithLogger(logger Logger) Option {
	return func(c *clientConfig) error {
		if logger == nil {
			return fmt.Errorf("goadsrt: logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector (optional, defaults to no-op).
func WithMetrics(m Metrics) Option {
	return func(c *clientConfig) error {
		if m == nil {
			return fmt.Errorf("goadsrt: metrics cannot be nil")
		}
		c.metrics = m
		return nil
	}
}

// Connect establishes the TCP session and returns the Client together with
// its Reader. The Reader is not started; the caller runs it:
//
//	client, reader, err := goadsrt.Connect(goadsrt.WithTarget("10.0.0.5:48898"))
//	if err != nil { ... }
//	go reader.Run()
//
// After a connection loss the transport reconnects automatically with
// bounded backoff until Close; callers only observe their own request
// failures during the outage.
func Connect(opts ...Option) (*Client, *Reader, error) {
	cfg := &clientConfig{
		source:   AutoSource(),
		timeouts: Timeouts{}.WithDefaults(),
		logger:   DefaultLogger,
		metrics:  DefaultMetrics,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, nil, err
		}
	}
	if cfg.address == "" {
		return nil, nil, fmt.Errorf("goadsrt: target address is required")
	}
	cfg.timeouts = cfg.timeouts.WithDefaults()

	var established atomic.Bool
	metrics := cfg.metrics
	onState := func(s ConnState) {
		metrics.ConnectionState(s.String())
		if s == transport.StateConnected && !established.CompareAndSwap(false, true) {
			metrics.Reconnected()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeouts.Connect)
	defer cancel()

	conn, err := transport.Dial(ctx, transport.Config{
		Address:       cfg.address,
		Timeouts:      cfg.timeouts,
		Source:        cfg.source,
		Backoff:       cfg.backoff,
		Logger:        cfg.logger,
		OnStateChange: onState,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("goadsrt: %w", err)
	}

	client := &Client{
		conn:    conn,
		timeout: cfg.timeouts,
		log:     cfg.logger,
		metrics: cfg.metrics,
		subs:    make(map[uint32]*Subscription),
	}
	conn.SetNotificationHandler(client.handleNotification)

	return client, &Reader{inner: conn.Reader()}, nil
}

// Source returns the AMS address the client presents for the current
// session.
func (c *Client) Source() Addr {
	return c.conn.Source()
}

// SessionID identifies one established socket session; it changes on every
// reconnect. Symbol handles resolved under an older session re-resolve
// transparently on next use.
func (c *Client) SessionID() uint64 {
	return c.conn.SessionID()
}

// ConnState returns the current transport state.
func (c *Client) ConnState() ConnState {
	return c.conn.State()
}

// Device returns a command issuer bound to one target AMS address. The
// address is immutable for the Device's lifetime; the Device holds no
// resource of its own.
func (c *Client) Device(addr Addr) *Device {
	return &Device{client: c, addr: addr}
}

// Close tears the client down: live subscriptions are deleted (best
// effort), the socket closes, the Reader exits, and every pending request
// resolves with ErrClosed.
func (c *Client) Close() error {
	c.subsMu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	return c.conn.Close()
}

// request issues one command and blocks until its response, its deadline,
// or connection teardown. The effective timeout is the smaller of
// Timeouts.Read and the context's own deadline; a caller can never wait
// unboundedly.
func (c *Client) request(ctx context.Context, cmd ads.CommandID, target Addr, data []byte) (*ams.Packet, error) {
	timeout := c.timeout.Read
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	invokeID := c.conn.NextInvokeID()
	req := ams.NewRequestPacket(target, c.conn.Source(), uint16(cmd), invokeID, data)

	start := time.Now()
	resp, err := c.conn.Do(ctx, req, timeout)
	c.metrics.OperationCompleted(commandName(cmd), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if resp.Header.ErrorCode != 0 {
		// Remote-reported error in a well-formed response: a command
		// failure, not a connection failure.
		return nil, ads.Error(resp.Header.ErrorCode)
	}
	return resp, nil
}

func commandName(cmd ads.CommandID) string {
	switch cmd {
	case ads.CmdReadDeviceInfo:
		return "read_device_info"
	case ads.CmdRead:
		return "read"
	case ads.CmdWrite:
		return "write"
	case ads.CmdReadState:
		return "read_state"
	case ads.CmdWriteControl:
		return "write_control"
	case ads.CmdAddDeviceNotification:
		return "add_notification"
	case ads.CmdDelDeviceNotification:
		return "delete_notification"
	case ads.CmdReadWrite:
		return "read_write"
	default:
		return "unknown"
	}
}
