package goadsrt

import (
	"context"
	"encoding"
	"encoding/binary"
	"fmt"
	"sync"
)

// Mapping binds a PLC symbol to a fixed-size byte region, for applications
// that exchange whole structs with the PLC on a cycle. The transfer buffer
// is allocated once and reused; every read and write moves exactly Size
// bytes, and a size disagreement fails before any network traffic.
//
// A Mapping serializes its own transfers. For concurrent access to the same
// symbol, use separate Mappings or a Handle.
type Mapping struct {
	handle *Handle

	mu  sync.Mutex
	buf []byte
}

// Symbol returns the mapped symbol name.
func (m *Mapping) Symbol() string {
	return m.handle.Name()
}

// Size returns the fixed transfer size in bytes.
func (m *Mapping) Size() int {
	return len(m.buf)
}

// Handle returns the underlying symbol handle, e.g. for Subscribe.
func (m *Mapping) Handle() *Handle {
	return m.handle
}

// ReadBytes reads the mapped region. The returned slice is the internal
// buffer, valid until the next call on this Mapping.
func (m *Mapping) ReadBytes(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.handle.ReadInto(ctx, m.buf); err != nil {
		return nil, err
	}
	return m.buf, nil
}

// WriteBytes writes the mapped region. len(data) must equal Size.
func (m *Mapping) WriteBytes(ctx context.Context, data []byte) error {
	if len(data) != len(m.buf) {
		return fmt.Errorf("goadsrt: mapping %q: got %d bytes, want %d: %w",
			m.Symbol(), len(data), len(m.buf), ErrSizeMismatch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.buf, data)
	return m.handle.Write(ctx, m.buf)
}

// ReadMapping reads the mapped region and decodes it into a value of type T.
// The encoded size of T must equal the mapping size; a mismatch fails
// without touching the network.
func ReadMapping[T any](ctx context.Context, m *Mapping) (T, error) {
	var v T
	if err := checkMappingSize(m, v); err != nil {
		return v, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.handle.ReadInto(ctx, m.buf); err != nil {
		return v, err
	}
	if _, err := binary.Decode(m.buf, binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("goadsrt: mapping %q: decode: %w", m.Symbol(), err)
	}
	return v, nil
}

// WriteMapping encodes v and writes it to the mapped region. The encoded
// size of T must equal the mapping size; a mismatch fails without touching
// the network.
func WriteMapping[T any](ctx context.Context, m *Mapping, v T) error {
	if err := checkMappingSize(m, v); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := binary.Encode(m.buf, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("goadsrt: mapping %q: encode: %w", m.Symbol(), err)
	}
	return m.handle.Write(ctx, m.buf)
}

// ReadBinary reads the mapped region and decodes it with v's own
// UnmarshalBinary. The codec sees the internal buffer; it must not retain it.
func (m *Mapping) ReadBinary(ctx context.Context, v encoding.BinaryUnmarshaler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.handle.ReadInto(ctx, m.buf); err != nil {
		return err
	}
	if err := v.UnmarshalBinary(m.buf); err != nil {
		return fmt.Errorf("goadsrt: mapping %q: decode: %w", m.Symbol(), err)
	}
	return nil
}

// WriteBinary encodes v with its own MarshalBinary and writes the result to
// the mapped region. The encoding must produce exactly Size bytes.
func (m *Mapping) WriteBinary(ctx context.Context, v encoding.BinaryMarshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("goadsrt: mapping %q: encode: %w", m.Symbol(), err)
	}
	return m.WriteBytes(ctx, data)
}

func checkMappingSize(m *Mapping, v any) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("goadsrt: mapping %q: type %T has no fixed encoded size: %w",
			m.Symbol(), v, ErrSizeMismatch)
	}
	if size != len(m.buf) {
		return fmt.Errorf("goadsrt: mapping %q: type %T encodes to %d bytes, mapping is %d: %w",
			m.Symbol(), v, size, len(m.buf), ErrSizeMismatch)
	}
	return nil
}
