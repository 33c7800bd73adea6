package goadsrt

import (
	"context"
	"fmt"
	"time"

	"github.com/mrpasztoradam/goadsrt/internal/ads"
)

// Device issues ADS commands against one target AMS address. It is a cheap
// value bound to its Client; any number may coexist and all are safe for
// concurrent use.
type Device struct {
	client *Client
	addr   Addr
}

// Addr returns the target AMS address of this device.
func (d *Device) Addr() Addr {
	return d.addr
}

// Client returns the client this device issues commands through.
func (d *Device) Client() *Client {
	return d.client
}

// DeviceInfo describes the remote ADS device.
type DeviceInfo struct {
	Name  string
	Major uint8
	Minor uint8
	Build uint16
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s %d.%d.%d", i.Name, i.Major, i.Minor, i.Build)
}

// DeviceState pairs the ADS run state with the device-specific state word.
type DeviceState struct {
	ADSState    AdsState
	DeviceState uint16
}

// Info reads name and version of the remote device.
func (d *Device) Info(ctx context.Context) (DeviceInfo, error) {
	resp, err := d.client.request(ctx, ads.CmdReadDeviceInfo, d.addr, nil)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("goadsrt: read device info: %w", err)
	}

	var info ads.ReadDeviceInfoResponse
	if err := info.UnmarshalBinary(resp.Data); err != nil {
		return DeviceInfo{}, fmt.Errorf("goadsrt: read device info: %w", err)
	}
	if res := ads.Error(info.Result); res.IsError() {
		return DeviceInfo{}, fmt.Errorf("goadsrt: read device info: %w", res)
	}
	return DeviceInfo{
		Name:  info.DeviceName,
		Major: info.MajorVersion,
		Minor: info.MinorVersion,
		Build: info.VersionBuild,
	}, nil
}

// Read reads up to length bytes from the given index group and offset. The
// device may legitimately return fewer bytes than requested.
func (d *Device) Read(ctx context.Context, indexGroup, indexOffset, length uint32) ([]byte, error) {
	req := ads.ReadRequest{IndexGroup: indexGroup, IndexOffset: indexOffset, Length: length}
	payload, _ := req.MarshalBinary()

	resp, err := d.client.request(ctx, ads.CmdRead, d.addr, payload)
	if err != nil {
		return nil, fmt.Errorf("goadsrt: read 0x%X:0x%X: %w", indexGroup, indexOffset, err)
	}

	var rr ads.ReadResponse
	if err := rr.UnmarshalBinary(resp.Data); err != nil {
		return nil, fmt.Errorf("goadsrt: read 0x%X:0x%X: %w", indexGroup, indexOffset, err)
	}
	if res := ads.Error(rr.Result); res.IsError() {
		return nil, fmt.Errorf("goadsrt: read 0x%X:0x%X: %w", indexGroup, indexOffset, res)
	}
	return rr.Data, nil
}

// ReadInto reads exactly len(buf) bytes into buf. A short read is an error.
func (d *Device) ReadInto(ctx context.Context, indexGroup, indexOffset uint32, buf []byte) error {
	data, err := d.Read(ctx, indexGroup, indexOffset, uint32(len(buf)))
	if err != nil {
		return err
	}
	if len(data) != len(buf) {
		return fmt.Errorf("goadsrt: read 0x%X:0x%X: got %d bytes, want %d: %w",
			indexGroup, indexOffset, len(data), len(buf), ErrSizeMismatch)
	}
	copy(buf, data)
	return nil
}

// Write writes data to the given index group and offset.
func (d *Device) Write(ctx context.Context, indexGroup, indexOffset uint32, data []byte) error {
	req := ads.WriteRequest{
		IndexGroup:  indexGroup,
		IndexOffset: indexOffset,
		Length:      uint32(len(data)),
		Data:        data,
	}
	payload, _ := req.MarshalBinary()

	resp, err := d.client.request(ctx, ads.CmdWrite, d.addr, payload)
	if err != nil {
		return fmt.Errorf("goadsrt: write 0x%X:0x%X: %w", indexGroup, indexOffset, err)
	}

	var wr ads.WriteResponse
	if err := wr.UnmarshalBinary(resp.Data); err != nil {
		return fmt.Errorf("goadsrt: write 0x%X:0x%X: %w", indexGroup, indexOffset, err)
	}
	if res := ads.Error(wr.Result); res.IsError() {
		return fmt.Errorf("goadsrt: write 0x%X:0x%X: %w", indexGroup, indexOffset, res)
	}
	return nil
}

// ReadWrite writes data and reads up to readLength bytes in one round trip.
func (d *Device) ReadWrite(ctx context.Context, indexGroup, indexOffset, readLength uint32, data []byte) ([]byte, error) {
	req := ads.ReadWriteRequest{
		IndexGroup:  indexGroup,
		IndexOffset: indexOffset,
		ReadLength:  readLength,
		WriteLength: uint32(len(data)),
		Data:        data,
	}
	payload, _ := req.MarshalBinary()

	resp, err := d.client.request(ctx, ads.CmdReadWrite, d.addr, payload)
	if err != nil {
		return nil, fmt.Errorf("goadsrt: read/write 0x%X:0x%X: %w", indexGroup, indexOffset, err)
	}

	var rw ads.ReadWriteResponse
	if err := rw.UnmarshalBinary(resp.Data); err != nil {
		return nil, fmt.Errorf("goadsrt: read/write 0x%X:0x%X: %w", indexGroup, indexOffset, err)
	}
	if res := ads.Error(rw.Result); res.IsError() {
		return nil, fmt.Errorf("goadsrt: read/write 0x%X:0x%X: %w", indexGroup, indexOffset, res)
	}
	return rw.Data, nil
}

// ReadWriteInto performs a ReadWrite and requires the response to fill buf
// exactly. A short response is an error.
func (d *Device) ReadWriteInto(ctx context.Context, indexGroup, indexOffset uint32, buf, data []byte) error {
	out, err := d.ReadWrite(ctx, indexGroup, indexOffset, uint32(len(buf)), data)
	if err != nil {
		return err
	}
	if len(out) != len(buf) {
		return fmt.Errorf("goadsrt: read/write 0x%X:0x%X: got %d bytes, want %d: %w",
			indexGroup, indexOffset, len(out), len(buf), ErrSizeMismatch)
	}
	copy(buf, out)
	return nil
}

// ReadState reads the run state of the device.
func (d *Device) ReadState(ctx context.Context) (DeviceState, error) {
	resp, err := d.client.request(ctx, ads.CmdReadState, d.addr, nil)
	if err != nil {
		return DeviceState{}, fmt.Errorf("goadsrt: read state: %w", err)
	}

	var rs ads.ReadStateResponse
	if err := rs.UnmarshalBinary(resp.Data); err != nil {
		return DeviceState{}, fmt.Errorf("goadsrt: read state: %w", err)
	}
	if res := ads.Error(rs.Result); res.IsError() {
		return DeviceState{}, fmt.Errorf("goadsrt: read state: %w", res)
	}
	return DeviceState{ADSState: rs.ADSState, DeviceState: rs.DeviceState}, nil
}

// WriteControl requests a run state transition on the device.
func (d *Device) WriteControl(ctx context.Context, adsState AdsState, deviceState uint16, data []byte) error {
	req := ads.WriteControlRequest{
		ADSState:    adsState,
		DeviceState: deviceState,
		Length:      uint32(len(data)),
		Data:        data,
	}
	payload, _ := req.MarshalBinary()

	resp, err := d.client.request(ctx, ads.CmdWriteControl, d.addr, payload)
	if err != nil {
		return fmt.Errorf("goadsrt: write control: %w", err)
	}

	var wc ads.WriteControlResponse
	if err := wc.UnmarshalBinary(resp.Data); err != nil {
		return fmt.Errorf("goadsrt: write control: %w", err)
	}
	if res := ads.Error(wc.Result); res.IsError() {
		return fmt.Errorf("goadsrt: write control: %w", res)
	}
	return nil
}

// waitStatePoll is the interval between state reads in WaitState.
const waitStatePoll = 100 * time.Millisecond

// WaitState polls until the device reports the wanted run state or the
// context is done. Intermediate read failures are tolerated; the device may
// be restarting.
func (d *Device) WaitState(ctx context.Context, want AdsState) error {
	ticker := time.NewTicker(waitStatePoll)
	defer ticker.Stop()

	for {
		state, err := d.ReadState(ctx)
		if err == nil && state.ADSState == want {
			return nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("goadsrt: wait for state %v: %w (last error: %v)", want, ctx.Err(), err)
			}
			return fmt.Errorf("goadsrt: wait for state %v: %w (last state: %v)", want, ctx.Err(), state.ADSState)
		case <-ticker.C:
		}
	}
}

// Symbol returns a lazily resolved handle for the named PLC symbol. No
// network traffic happens until the handle is first used.
func (d *Device) Symbol(name string) *Handle {
	return &Handle{device: d, name: name}
}

// Mapping returns a fixed-size mapping over the named symbol. The size must
// match the symbol's size on the device; every transfer moves exactly size
// bytes.
func (d *Device) Mapping(symbol string, size int) *Mapping {
	return &Mapping{handle: d.Symbol(symbol), buf: make([]byte, size)}
}
