package goadsrt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/mrpasztoradam/goadsrt/internal/ads"
)

// Handle is a cached symbol handle for one named PLC variable. Resolution
// is lazy: the first use fetches the handle, later uses reuse it. After a
// reconnect the next call re-resolves before touching the device. When the
// device rejects a cached handle (typically after a PLC program download)
// the call fails with ErrInvalidHandle and the cache is dropped; the caller
// decides whether to retry, either by calling again (which resolves anew)
// or via an explicit Resolve first.
type Handle struct {
	device *Device
	name   string

	mu      sync.Mutex
	value   uint32
	valid   bool
	session uint64
}

// Name returns the symbol name this handle resolves.
func (h *Handle) Name() string {
	return h.name
}

// Resolved reports whether a handle value is currently cached. It does not
// touch the network.
func (h *Handle) Resolved() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.valid && h.session == h.device.client.SessionID()
}

// Resolve fetches the handle from the device, replacing any cached value.
// Callers normally never need this; Read and Write resolve on demand.
func (h *Handle) Resolve(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resolveLocked(ctx)
}

// resolveLocked must be called with h.mu held. The session id is captured
// before the request so that a reconnect racing the resolution marks the
// fresh handle stale rather than trusting it.
func (h *Handle) resolveLocked(ctx context.Context) error {
	session := h.device.client.SessionID()

	req := ads.GetSymbolHandleByNameRequest{SymbolName: h.name}
	payload, _ := req.MarshalBinary()

	data, err := h.device.ReadWrite(ctx, ads.IndexGroupSymbolHandleByName, 0, 4, payload)
	if err != nil {
		h.valid = false
		return fmt.Errorf("goadsrt: resolve symbol %q: %w", h.name, err)
	}

	var resp ads.GetSymbolHandleByNameResponse
	if err := resp.UnmarshalBinary(data); err != nil {
		h.valid = false
		return fmt.Errorf("goadsrt: resolve symbol %q: %w", h.name, err)
	}

	h.value = resp.Handle
	h.valid = true
	h.session = session
	return nil
}

// ensure returns the handle value, resolving first if nothing valid is
// cached or the cache predates the current session.
func (h *Handle) ensure(ctx context.Context) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid || h.session != h.device.client.SessionID() {
		if err := h.resolveLocked(ctx); err != nil {
			return 0, err
		}
	}
	return h.value, nil
}

// invalidate drops the cached handle after the device rejected it.
func (h *Handle) invalidate() {
	h.mu.Lock()
	h.valid = false
	h.mu.Unlock()
}

// do runs one operation with a resolved handle. When the device rejects
// the cached handle, the cache is dropped and the rejection surfaces as
// ErrInvalidHandle with the device code attached; the operation is never
// retried here.
func (h *Handle) do(ctx context.Context, op string, fn func(value uint32) error) error {
	value, err := h.ensure(ctx)
	if err != nil {
		return err
	}

	err = fn(value)
	if err == nil {
		return nil
	}

	var adsErr ads.Error
	if errors.As(err, &adsErr) && adsErr.IsHandleInvalid() {
		h.invalidate()
		return fmt.Errorf("goadsrt: %s symbol %q: %w: %w", op, h.name, ErrInvalidHandle, adsErr)
	}
	return err
}

// Read reads up to length bytes of the symbol's value.
func (h *Handle) Read(ctx context.Context, length uint32) ([]byte, error) {
	var data []byte
	err := h.do(ctx, "read", func(value uint32) error {
		var err error
		data, err = h.device.Read(ctx, ads.IndexGroupSymbolValueByHandle, value, length)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadInto reads exactly len(buf) bytes of the symbol's value into buf.
func (h *Handle) ReadInto(ctx context.Context, buf []byte) error {
	return h.do(ctx, "read", func(value uint32) error {
		return h.device.ReadInto(ctx, ads.IndexGroupSymbolValueByHandle, value, buf)
	})
}

// Write writes data as the symbol's value.
func (h *Handle) Write(ctx context.Context, data []byte) error {
	return h.do(ctx, "write", func(value uint32) error {
		return h.device.Write(ctx, ads.IndexGroupSymbolValueByHandle, value, data)
	})
}

// Subscribe registers a device notification on the symbol's value.
func (h *Handle) Subscribe(ctx context.Context, attrs Attributes) (*Subscription, error) {
	var sub *Subscription
	err := h.do(ctx, "subscribe", func(value uint32) error {
		var err error
		sub, err = h.device.AddNotification(ctx, ads.IndexGroupSymbolValueByHandle, value, attrs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Release returns the handle to the device and drops the cache. The Handle
// remains usable; the next call resolves again. Releasing an unresolved or
// stale handle is a no-op.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	if !h.valid || h.session != h.device.client.SessionID() {
		h.valid = false
		h.mu.Unlock()
		return nil
	}
	value := h.value
	h.valid = false
	h.mu.Unlock()

	req := ads.ReleaseSymbolHandleRequest{Handle: value}
	payload, _ := req.MarshalBinary()
	if err := h.device.Write(ctx, ads.IndexGroupReleaseSymbolHandle, 0, payload); err != nil {
		return fmt.Errorf("goadsrt: release symbol %q: %w", h.name, err)
	}
	return nil
}

// ReadValue reads the symbol as a fixed-size little-endian value of type T.
// T must have a size known to encoding/binary (numeric types, arrays and
// structs of them).
func ReadValue[T any](ctx context.Context, h *Handle) (T, error) {
	var v T
	size := binary.Size(v)
	if size < 0 {
		return v, fmt.Errorf("goadsrt: type %T has no fixed encoded size: %w", v, ErrSizeMismatch)
	}

	buf := make([]byte, size)
	if err := h.ReadInto(ctx, buf); err != nil {
		return v, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("goadsrt: decode symbol %q: %w", h.name, err)
	}
	return v, nil
}

// WriteValue writes v as the symbol's value, encoded little-endian.
func WriteValue[T any](ctx context.Context, h *Handle, v T) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("goadsrt: type %T has no fixed encoded size: %w", v, ErrSizeMismatch)
	}

	var buf bytes.Buffer
	buf.Grow(size)
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("goadsrt: encode symbol %q: %w", h.name, err)
	}
	return h.Write(ctx, buf.Bytes())
}
