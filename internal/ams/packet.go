package ams

import (
	"fmt"
	"io"
)

// Packet represents a complete AMS packet consisting of TCP header, AMS header, and data.
type Packet struct {
	TCPHeader TCPHeader
	Header    Header
	Data      []byte
}

// NewRequestPacket creates a new request packet with the given parameters.
func NewRequestPacket(target, source Addr, commandID uint16, invokeID uint32, data []byte) *Packet {
	return &Packet{
		TCPHeader: TCPHeader{
			Reserved: 0,
			Length:   HeaderSize + uint32(len(data)),
		},
		Header: Header{
			TargetNetID: target.NetID,
			TargetPort:  target.Port,
			SourceNetID: source.NetID,
			SourcePort:  source.Port,
			CommandID:   commandID,
			StateFlags:  StateFlagsTCPRequest,
			DataLength:  uint32(len(data)),
			ErrorCode:   0,
			InvokeID:    invokeID,
		},
		Data: data,
	}
}

// NewResponsePacket creates a response packet answering req with the given payload.
// Used by the mock responders in tests; a client never sends responses itself.
func NewResponsePacket(req *Packet, errorCode uint32, data []byte) *Packet {
	return &Packet{
		TCPHeader: TCPHeader{
			Length: HeaderSize + uint32(len(data)),
		},
		Header: Header{
			TargetNetID: req.Header.SourceNetID,
			TargetPort:  req.Header.SourcePort,
			SourceNetID: req.Header.TargetNetID,
			SourcePort:  req.Header.TargetPort,
			CommandID:   req.Header.CommandID,
			StateFlags:  StateFlagsTCPResponse,
			DataLength:  uint32(len(data)),
			ErrorCode:   errorCode,
			InvokeID:    req.Header.InvokeID,
		},
		Data: data,
	}
}

// MarshalBinary encodes the complete packet (TCP header + AMS header + data).
func (p *Packet) MarshalBinary() ([]byte, error) {
	tcpBuf, err := p.TCPHeader.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ams: marshal TCP header: %w", err)
	}

	amsBuf, err := p.Header.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ams: marshal AMS header: %w", err)
	}

	buf := make([]byte, 0, len(tcpBuf)+len(amsBuf)+len(p.Data))
	buf = append(buf, tcpBuf...)
	buf = append(buf, amsBuf...)
	buf = append(buf, p.Data...)

	return buf, nil
}

// UnmarshalBinary decodes a complete packet from a byte slice.
//
// It returns ErrIncompleteFrame (wrapped) when data ends before the frame
// does, and ErrMalformedFrame (wrapped) when the declared lengths are
// inconsistent with each other.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < TCPHeaderSize+HeaderSize {
		return fmt.Errorf("%w: packet requires at least %d bytes, got %d",
			ErrIncompleteFrame, TCPHeaderSize+HeaderSize, len(data))
	}

	if err := p.TCPHeader.UnmarshalBinary(data[0:TCPHeaderSize]); err != nil {
		return err
	}
	if err := validateLengths(&p.TCPHeader); err != nil {
		return err
	}

	if err := p.Header.UnmarshalBinary(data[TCPHeaderSize : TCPHeaderSize+HeaderSize]); err != nil {
		return err
	}

	if p.Header.DataLength != p.TCPHeader.Length-HeaderSize {
		return fmt.Errorf("%w: AMS data length %d disagrees with TCP length %d",
			ErrMalformedFrame, p.Header.DataLength, p.TCPHeader.Length)
	}

	total := TCPHeaderSize + int(p.TCPHeader.Length)
	if len(data) < total {
		return fmt.Errorf("%w: packet declares %d bytes, got %d", ErrIncompleteFrame, total, len(data))
	}

	if p.Header.DataLength > 0 {
		p.Data = make([]byte, p.Header.DataLength)
		copy(p.Data, data[TCPHeaderSize+HeaderSize:total])
	} else {
		p.Data = nil
	}

	return nil
}

func validateLengths(h *TCPHeader) error {
	if h.Reserved != 0 {
		return fmt.Errorf("%w: reserved field is 0x%04X", ErrMalformedFrame, h.Reserved)
	}
	if h.Length < HeaderSize {
		return fmt.Errorf("%w: TCP length %d shorter than AMS header", ErrMalformedFrame, h.Length)
	}
	if h.Length > MaxFrameSize {
		return fmt.Errorf("%w: TCP length %d exceeds frame limit", ErrMalformedFrame, h.Length)
	}
	return nil
}

// ReadPacket reads a complete AMS packet from an io.Reader.
// It first reads the TCP header to determine the packet size, then reads the
// rest. A frame split across multiple socket reads is accumulated via
// io.ReadFull. Length inconsistencies yield ErrMalformedFrame.
func ReadPacket(r io.Reader) (*Packet, error) {
	tcpBuf := make([]byte, TCPHeaderSize)
	if _, err := io.ReadFull(r, tcpBuf); err != nil {
		return nil, fmt.Errorf("ams: read TCP header: %w", err)
	}

	var tcpHeader TCPHeader
	if err := tcpHeader.UnmarshalBinary(tcpBuf); err != nil {
		return nil, err
	}
	if err := validateLengths(&tcpHeader); err != nil {
		return nil, err
	}

	payloadBuf := make([]byte, tcpHeader.Length)
	if _, err := io.ReadFull(r, payloadBuf); err != nil {
		return nil, fmt.Errorf("ams: read AMS payload: %w", err)
	}

	var amsHeader Header
	if err := amsHeader.UnmarshalBinary(payloadBuf[0:HeaderSize]); err != nil {
		return nil, err
	}

	if amsHeader.DataLength != tcpHeader.Length-HeaderSize {
		return nil, fmt.Errorf("%w: AMS data length %d disagrees with TCP length %d",
			ErrMalformedFrame, amsHeader.DataLength, tcpHeader.Length)
	}

	var data []byte
	if amsHeader.DataLength > 0 {
		data = payloadBuf[HeaderSize:]
	}

	return &Packet{
		TCPHeader: tcpHeader,
		Header:    amsHeader,
		Data:      data,
	}, nil
}

// WritePacket writes a complete AMS packet to an io.Writer.
func WritePacket(w io.Writer, p *Packet) error {
	buf, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ams: marshal packet: %w", err)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("ams: write packet: %w", err)
	}

	return nil
}
