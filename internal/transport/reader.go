package transport

import (
	"bufio"
	"errors"
	"io"

	"github.com/mrpasztoradam/goadsrt/internal/ads"
	"github.com/mrpasztoradam/goadsrt/internal/ams"
)

// Reader owns the only read path on the socket. It is not started
// automatically: the embedding application calls Run on an execution
// context of its choosing, so that scheduling (e.g. a real-time thread)
// stays under its control. Until Run executes, no response is ever
// delivered and requests simply time out.
type Reader struct {
	conn *Conn
}

// Reader returns the read loop bound to this connection.
func (c *Conn) Reader() *Reader {
	return &Reader{conn: c}
}

// Run reads frames until the transport is closed. On socket failure or a
// malformed frame it tears the connection down (failing all pending
// requests fast) and reconnects with bounded backoff, indefinitely, until
// Close. Run returns only after Close.
func (r *Reader) Run() {
	c := r.conn
	for {
		c.mu.Lock()
		nc := c.netConn
		c.mu.Unlock()

		if c.isClosed() {
			return
		}
		if nc == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		err := r.readFrames(nc)
		if c.isClosed() {
			return
		}
		c.teardown(err)
		if !c.reconnect() {
			return
		}
	}
}

// readFrames drains the socket until it fails or yields a frame the stream
// cannot recover from. Partial frames are accumulated by the codec.
func (r *Reader) readFrames(nc io.Reader) error {
	c := r.conn
	br := bufio.NewReaderSize(nc, 4096)

	for {
		pkt, err := ams.ReadPacket(br)
		if err != nil {
			if errors.Is(err, ams.ErrMalformedFrame) {
				// The framing is out of sync; the stream can no
				// longer be trusted. Treated like connection loss.
				c.log.Error("transport: malformed frame", "error", err.Error())
			}
			return err
		}
		r.dispatch(pkt)
	}
}

// dispatch resolves one frame to either a pending request (by invoke id) or
// the notification sink. Never blocks: a slow notification consumer must
// not stall responses for unrelated requests.
func (r *Reader) dispatch(pkt *ams.Packet) {
	c := r.conn

	// Frames addressed to someone else (stale router traffic) are dropped.
	if src := c.Source(); !pkt.Header.TargetNetID.IsZero() && pkt.Header.Target() != src {
		c.log.Debug("transport: frame for foreign address dropped",
			"target", pkt.Header.Target().String())
		return
	}

	if pkt.Header.CommandID == uint16(ads.CmdDeviceNotification) {
		c.notifyMu.RLock()
		handler := c.notify
		c.notifyMu.RUnlock()
		if handler != nil {
			handler(pkt)
		}
		return
	}

	invokeID := pkt.Header.InvokeID
	c.pendingMu.Lock()
	pr, ok := c.pending[invokeID]
	if ok {
		delete(c.pending, invokeID)
	}
	c.pendingMu.Unlock()

	if !ok {
		// Response for a request that already timed out or was swept.
		c.log.Debug("transport: response for unknown invoke id dropped", "invoke_id", invokeID)
		return
	}
	pr.ch <- result{pkt: pkt}
}
