package goadsrt

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrpasztoradam/goadsrt/internal/ads"
	"github.com/mrpasztoradam/goadsrt/internal/ams"
)

var testPLCAddr = ams.NewAddr(ams.NetID{10, 0, 10, 20, 1, 1}, 851)

// testPLC is a minimal ADS device behind a TCP listener: a symbol table
// with handle allocation, value storage, run state and notifications. It is
// the remote end for the end-to-end tests.
type testPLC struct {
	t  *testing.T
	ln net.Listener

	mu            sync.Mutex
	symbols       map[string][]byte
	handles       map[uint32]string
	nextHandle    uint32
	notifyHandles map[uint32]bool
	nextNotify    uint32
	state         ads.ADSState
	conns         []net.Conn
	clientSource  ams.Addr

	resolves  atomic.Int32
	releases  atomic.Int32
	dropNext  atomic.Bool
	silentOne atomic.Bool
}

func newTestPLC(t *testing.T) *testPLC {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	p := &testPLC{
		t:             t,
		ln:            ln,
		symbols:       make(map[string][]byte),
		handles:       make(map[uint32]string),
		notifyHandles: make(map[uint32]bool),
		state:         ads.StateRun,
	}
	go p.acceptLoop()
	t.Cleanup(p.stop)
	return p
}

func (p *testPLC) addr() string {
	return p.ln.Addr().String()
}

func (p *testPLC) setSymbol(name string, value []byte) {
	p.mu.Lock()
	p.symbols[name] = append([]byte(nil), value...)
	p.mu.Unlock()
}

func (p *testPLC) symbolValue(name string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.symbols[name]...)
}

// revokeHandles forgets all allocated handles, as a PLC does after a
// program download. Symbol values survive.
func (p *testPLC) revokeHandles() {
	p.mu.Lock()
	p.handles = make(map[uint32]string)
	p.mu.Unlock()
}

func (p *testPLC) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.mu.Unlock()
		go p.serve(conn)
	}
}

func (p *testPLC) stop() {
	p.ln.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		c.Close()
	}
	p.conns = nil
}

func (p *testPLC) serve(conn net.Conn) {
	br := bufio.NewReader(conn)
	for {
		req, err := ams.ReadPacket(br)
		if err != nil {
			return
		}

		p.mu.Lock()
		p.clientSource = req.Header.Source()
		p.mu.Unlock()

		if p.dropNext.CompareAndSwap(true, false) {
			conn.Close()
			return
		}
		if p.silentOne.CompareAndSwap(true, false) {
			continue
		}

		resp := p.handle(req)
		if resp != nil {
			if err := ams.WritePacket(conn, resp); err != nil {
				return
			}
		}
	}
}

func (p *testPLC) handle(req *ams.Packet) *ams.Packet {
	switch ads.CommandID(req.Header.CommandID) {
	case ads.CmdReadDeviceInfo:
		data, _ := (&ads.ReadDeviceInfoResponse{
			MajorVersion: 3, MinorVersion: 1, VersionBuild: 4024, DeviceName: "Plc30 App",
		}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)

	case ads.CmdReadState:
		p.mu.Lock()
		state := p.state
		p.mu.Unlock()
		data, _ := (&ads.ReadStateResponse{ADSState: state}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)

	case ads.CmdWriteControl:
		var wc ads.WriteControlRequest
		if err := wc.UnmarshalBinary(req.Data); err != nil {
			return ams.NewResponsePacket(req, uint32(ads.ErrDeviceInvalidData), nil)
		}
		p.mu.Lock()
		p.state = wc.ADSState
		p.mu.Unlock()
		data, _ := (&ads.WriteControlResponse{}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)

	case ads.CmdReadWrite:
		return p.handleReadWrite(req)

	case ads.CmdRead:
		return p.handleRead(req)

	case ads.CmdWrite:
		return p.handleWrite(req)

	case ads.CmdAddDeviceNotification:
		p.mu.Lock()
		p.nextNotify++
		handle := p.nextNotify
		p.notifyHandles[handle] = true
		p.mu.Unlock()
		data, _ := (&ads.AddDeviceNotificationResponse{NotificationHandle: handle}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)

	case ads.CmdDelDeviceNotification:
		var del ads.DeleteDeviceNotificationRequest
		if err := del.UnmarshalBinary(req.Data); err != nil {
			return ams.NewResponsePacket(req, uint32(ads.ErrDeviceInvalidData), nil)
		}
		p.mu.Lock()
		known := p.notifyHandles[del.NotificationHandle]
		delete(p.notifyHandles, del.NotificationHandle)
		p.mu.Unlock()

		result := uint32(0)
		if !known {
			result = uint32(ads.ErrDeviceNotifyHandle)
		}
		data, _ := (&ads.DeleteDeviceNotificationResponse{Result: result}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)
	}

	return ams.NewResponsePacket(req, uint32(ads.ErrDeviceServiceNotSupp), nil)
}

func (p *testPLC) handleReadWrite(req *ams.Packet) *ams.Packet {
	var rw ads.ReadWriteRequest
	if err := rw.UnmarshalBinary(req.Data); err != nil {
		return ams.NewResponsePacket(req, uint32(ads.ErrDeviceInvalidData), nil)
	}

	if rw.IndexGroup != ads.IndexGroupSymbolHandleByName {
		data, _ := (&ads.ReadWriteResponse{Result: uint32(ads.ErrDeviceInvalidIndexGroup)}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)
	}

	p.resolves.Add(1)
	name := string(bytes.TrimRight(rw.Data, "\x00"))

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.symbols[name]; !ok {
		data, _ := (&ads.ReadWriteResponse{Result: uint32(ads.ErrDeviceSymbolNotFound)}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)
	}

	p.nextHandle++
	handle := p.nextHandle
	p.handles[handle] = name

	handleBytes := []byte{byte(handle), byte(handle >> 8), byte(handle >> 16), byte(handle >> 24)}
	data, _ := (&ads.ReadWriteResponse{Result: 0, Length: 4, Data: handleBytes}).MarshalBinary()
	return ams.NewResponsePacket(req, 0, data)
}

func (p *testPLC) handleRead(req *ams.Packet) *ams.Packet {
	var r ads.ReadRequest
	if err := r.UnmarshalBinary(req.Data); err != nil {
		return ams.NewResponsePacket(req, uint32(ads.ErrDeviceInvalidData), nil)
	}

	if r.IndexGroup != ads.IndexGroupSymbolValueByHandle {
		data, _ := (&ads.ReadResponse{Result: uint32(ads.ErrDeviceInvalidIndexGroup)}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)
	}

	p.mu.Lock()
	name, ok := p.handles[r.IndexOffset]
	value := p.symbols[name]
	p.mu.Unlock()

	if !ok {
		data, _ := (&ads.ReadResponse{Result: uint32(ads.ErrDeviceSymbolNotFound)}).MarshalBinary()
		return ams.NewResponsePacket(req, 0, data)
	}
	if int(r.Length) < len(value) {
		value = value[:r.Length]
	}
	data, _ := (&ads.ReadResponse{Result: 0, Length: uint32(len(value)), Data: value}).MarshalBinary()
	return ams.NewResponsePacket(req, 0, data)
}

func (p *testPLC) handleWrite(req *ams.Packet) *ams.Packet {
	var w ads.WriteRequest
	if err := w.UnmarshalBinary(req.Data); err != nil {
		return ams.NewResponsePacket(req, uint32(ads.ErrDeviceInvalidData), nil)
	}

	result := uint32(0)
	switch w.IndexGroup {
	case ads.IndexGroupSymbolValueByHandle:
		p.mu.Lock()
		name, ok := p.handles[w.IndexOffset]
		if ok {
			p.symbols[name] = append([]byte(nil), w.Data...)
		}
		p.mu.Unlock()
		if !ok {
			result = uint32(ads.ErrDeviceSymbolNotFound)
		}

	case ads.IndexGroupReleaseSymbolHandle:
		var rel ads.ReleaseSymbolHandleRequest
		if err := rel.UnmarshalBinary(w.Data); err != nil {
			result = uint32(ads.ErrDeviceInvalidData)
			break
		}
		p.releases.Add(1)
		p.mu.Lock()
		delete(p.handles, rel.Handle)
		p.mu.Unlock()

	default:
		result = uint32(ads.ErrDeviceInvalidIndexGroup)
	}

	data, _ := (&ads.WriteResponse{Result: result}).MarshalBinary()
	return ams.NewResponsePacket(req, 0, data)
}

// pushNotification sends one device notification frame for the given
// notification handle over the newest connection.
func (p *testPLC) pushNotification(handle uint32, ts time.Time, value []byte) {
	const fileTimeEpoch = 116444736000000000
	stream := ads.NotificationStream{
		Stamps: []ads.NotificationStamp{{
			Timestamp: uint64(fileTimeEpoch + ts.UnixNano()/100),
			Samples:   []ads.NotificationSample{{NotificationHandle: handle, Data: value}},
		}},
	}
	payload, _ := stream.MarshalBinary()

	p.mu.Lock()
	var conn net.Conn
	if len(p.conns) > 0 {
		conn = p.conns[len(p.conns)-1]
	}
	target := p.clientSource
	p.mu.Unlock()
	if conn == nil {
		p.t.Fatal("no connection to push notification on")
	}

	pkt := ams.NewRequestPacket(target, testPLCAddr, uint16(ads.CmdDeviceNotification), 0, payload)
	if err := ams.WritePacket(conn, pkt); err != nil {
		p.t.Logf("push notification failed: %v", err)
	}
}

// connect dials a client against the test PLC and starts its reader.
func (p *testPLC) connect(t *testing.T, opts ...Option) (*Client, *Device) {
	t.Helper()
	opts = append([]Option{
		WithTarget(p.addr()),
		WithTimeouts(Timeouts{Connect: time.Second, Read: 2 * time.Second, Write: time.Second}),
		WithReconnectBackoff(10*time.Millisecond, 100*time.Millisecond),
	}, opts...)

	client, reader, err := Connect(opts...)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	go reader.Run()

	return client, client.Device(testPLCAddr)
}

// waitConnected blocks until the client reports a connected transport with
// a session id differing from old.
func waitConnected(t *testing.T, client *Client, oldSession uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for client.ConnState() != ConnConnected || client.SessionID() == oldSession {
		if time.Now().After(deadline) {
			t.Fatalf("client did not reconnect: state=%v", client.ConnState())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
