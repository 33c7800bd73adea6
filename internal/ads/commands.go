// Package ads implements ADS (Automation Device Specification) command handling.
package ads

import (
	"encoding/binary"
	"fmt"
)

type CommandID uint16

const (
	CmdInvalid               CommandID = 0x0000
	CmdReadDeviceInfo        CommandID = 0x0001
	CmdRead                  CommandID = 0x0002
	CmdWrite                 CommandID = 0x0003
	CmdReadState             CommandID = 0x0004
	CmdWriteControl          CommandID = 0x0005
	CmdAddDeviceNotification CommandID = 0x0006
	CmdDelDeviceNotification CommandID = 0x0007
	CmdDeviceNotification    CommandID = 0x0008
	CmdReadWrite             CommandID = 0x0009
)

// Index groups for direct memory and I/O access.
const (
	IndexGroupPLCMemory          uint32 = 0x00004020
	IndexGroupPLCMemoryBit       uint32 = 0x00004021
	IndexGroupPhysicalInputs     uint32 = 0x0000F020
	IndexGroupPhysicalInputsBit  uint32 = 0x0000F021
	IndexGroupPhysicalOutputs    uint32 = 0x0000F030
	IndexGroupPhysicalOutputsBit uint32 = 0x0000F031
)

// Reserved index groups for the symbol handle lifecycle.
const (
	IndexGroupSymbolHandleByName  uint32 = 0xF003 // ReadWrite: name in, handle out
	IndexGroupSymbolValueByName   uint32 = 0xF004 // Read/write a symbol value by name directly
	IndexGroupSymbolValueByHandle uint32 = 0xF005 // Read/write a symbol value, index offset = handle
	IndexGroupReleaseSymbolHandle uint32 = 0xF006 // Write: handle in
	IndexGroupSymbolInfoByName    uint32 = 0xF007 // Get symbol info by name
	IndexGroupSymbolVersion       uint32 = 0xF008 // Get symbol version
)

// ADSState is the run state reported by an ADS device.
type ADSState uint16

const (
	StateInvalid      ADSState = 0
	StateIdle         ADSState = 1
	StateReset        ADSState = 2
	StateInit         ADSState = 3
	StateStart        ADSState = 4
	StateRun          ADSState = 5
	StateStop         ADSState = 6
	StateSaveConfig   ADSState = 7
	StateLoadConfig   ADSState = 8
	StatePowerFail    ADSState = 9
	StatePowerGood    ADSState = 10
	StateError        ADSState = 11
	StateShutdown     ADSState = 12
	StateSuspend      ADSState = 13
	StateResume       ADSState = 14
	StateConfig       ADSState = 15
	StateReconfig     ADSState = 16
	StateStopping     ADSState = 17
	StateIncompatible ADSState = 18
	StateException    ADSState = 19
)

func (s ADSState) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateIdle:
		return "idle"
	case StateReset:
		return "reset"
	case StateInit:
		return "init"
	case StateStart:
		return "start"
	case StateRun:
		return "run"
	case StateStop:
		return "stop"
	case StateSaveConfig:
		return "save config"
	case StateLoadConfig:
		return "load config"
	case StatePowerFail:
		return "power fail"
	case StatePowerGood:
		return "power good"
	case StateError:
		return "error"
	case StateShutdown:
		return "shutdown"
	case StateSuspend:
		return "suspend"
	case StateResume:
		return "resume"
	case StateConfig:
		return "config"
	case StateReconfig:
		return "reconfig"
	case StateStopping:
		return "stopping"
	case StateIncompatible:
		return "incompatible"
	case StateException:
		return "exception"
	default:
		return fmt.Sprintf("ADSState(%d)", uint16(s))
	}
}

type ReadRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	Length      uint32
}

func (r *ReadRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], r.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], r.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], r.Length)
	return buf, nil
}

func (r *ReadRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("ads: read request requires 12 bytes, got %d", len(data))
	}
	r.IndexGroup = binary.LittleEndian.Uint32(data[0:4])
	r.IndexOffset = binary.LittleEndian.Uint32(data[4:8])
	r.Length = binary.LittleEndian.Uint32(data[8:12])
	return nil
}

type ReadResponse struct {
	Result uint32
	Length uint32
	Data   []byte
}

func (r *ReadResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8+len(r.Data))
	binary.LittleEndian.PutUint32(buf[0:4], r.Result)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(r.Data)))
	copy(buf[8:], r.Data)
	return buf, nil
}

func (r *ReadResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("ads: read response requires at least 8 bytes, got %d", len(data))
	}
	r.Result = binary.LittleEndian.Uint32(data[0:4])
	r.Length = binary.LittleEndian.Uint32(data[4:8])
	if uint32(len(data)-8) < r.Length {
		return fmt.Errorf("ads: read response declares %d data bytes, got %d", r.Length, len(data)-8)
	}
	r.Data = make([]byte, r.Length)
	copy(r.Data, data[8:8+r.Length])
	return nil
}

type WriteRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	Length      uint32
	Data        []byte
}

func (w *WriteRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 12+len(w.Data))
	binary.LittleEndian.PutUint32(buf[0:4], w.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], w.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], w.Length)
	copy(buf[12:], w.Data)
	return buf, nil
}

func (w *WriteRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("ads: write request requires at least 12 bytes, got %d", len(data))
	}
	w.IndexGroup = binary.LittleEndian.Uint32(data[0:4])
	w.IndexOffset = binary.LittleEndian.Uint32(data[4:8])
	w.Length = binary.LittleEndian.Uint32(data[8:12])
	if uint32(len(data)-12) < w.Length {
		return fmt.Errorf("ads: write request declares %d data bytes, got %d", w.Length, len(data)-12)
	}
	w.Data = make([]byte, w.Length)
	copy(w.Data, data[12:12+w.Length])
	return nil
}

type WriteResponse struct {
	Result uint32
}

func (w *WriteResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], w.Result)
	return buf, nil
}

func (w *WriteResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("ads: write response requires 4 bytes, got %d", len(data))
	}
	w.Result = binary.LittleEndian.Uint32(data[0:4])
	return nil
}

type ReadStateRequest struct{}

func (r *ReadStateRequest) MarshalBinary() ([]byte, error) {
	return []byte{}, nil
}

type ReadStateResponse struct {
	Result      uint32
	ADSState    ADSState
	DeviceState uint16
}

func (r *ReadStateResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], r.Result)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(r.ADSState))
	binary.LittleEndian.PutUint16(buf[6:8], r.DeviceState)
	return buf, nil
}

func (r *ReadStateResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("ads: read state response requires 8 bytes, got %d", len(data))
	}
	r.Result = binary.LittleEndian.Uint32(data[0:4])
	r.ADSState = ADSState(binary.LittleEndian.Uint16(data[4:6]))
	r.DeviceState = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

type ReadDeviceInfoRequest struct{}

func (r *ReadDeviceInfoRequest) MarshalBinary() ([]byte, error) {
	return []byte{}, nil
}

type ReadDeviceInfoResponse struct {
	Result       uint32
	MajorVersion uint8
	MinorVersion uint8
	VersionBuild uint16
	DeviceName   string
}

func (r *ReadDeviceInfoResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], r.Result)
	buf[4] = r.MajorVersion
	buf[5] = r.MinorVersion
	binary.LittleEndian.PutUint16(buf[6:8], r.VersionBuild)
	copy(buf[8:24], r.DeviceName)
	return buf, nil
}

func (r *ReadDeviceInfoResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 24 {
		return fmt.Errorf("ads: read device info response requires 24 bytes, got %d", len(data))
	}
	r.Result = binary.LittleEndian.Uint32(data[0:4])
	r.MajorVersion = data[4]
	r.MinorVersion = data[5]
	r.VersionBuild = binary.LittleEndian.Uint16(data[6:8])

	// Name is null-terminated within a fixed 16-byte field.
	nameBytes := data[8:24]
	nameLen := len(nameBytes)
	for i, b := range nameBytes {
		if b == 0 {
			nameLen = i
			break
		}
	}
	r.DeviceName = string(nameBytes[:nameLen])
	return nil
}

type ReadWriteRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	ReadLength  uint32
	WriteLength uint32
	Data        []byte
}

func (r *ReadWriteRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16+len(r.Data))
	binary.LittleEndian.PutUint32(buf[0:4], r.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], r.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], r.ReadLength)
	binary.LittleEndian.PutUint32(buf[12:16], r.WriteLength)
	copy(buf[16:], r.Data)
	return buf, nil
}

func (r *ReadWriteRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("ads: read/write request requires at least 16 bytes, got %d", len(data))
	}
	r.IndexGroup = binary.LittleEndian.Uint32(data[0:4])
	r.IndexOffset = binary.LittleEndian.Uint32(data[4:8])
	r.ReadLength = binary.LittleEndian.Uint32(data[8:12])
	r.WriteLength = binary.LittleEndian.Uint32(data[12:16])
	if uint32(len(data)-16) < r.WriteLength {
		return fmt.Errorf("ads: read/write request declares %d data bytes, got %d", r.WriteLength, len(data)-16)
	}
	r.Data = make([]byte, r.WriteLength)
	copy(r.Data, data[16:16+r.WriteLength])
	return nil
}

type ReadWriteResponse struct {
	Result uint32
	Length uint32
	Data   []byte
}

func (r *ReadWriteResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8+len(r.Data))
	binary.LittleEndian.PutUint32(buf[0:4], r.Result)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(r.Data)))
	copy(buf[8:], r.Data)
	return buf, nil
}

func (r *ReadWriteResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("ads: read/write response requires at least 8 bytes, got %d", len(data))
	}
	r.Result = binary.LittleEndian.Uint32(data[0:4])
	r.Length = binary.LittleEndian.Uint32(data[4:8])
	if uint32(len(data)-8) < r.Length {
		return fmt.Errorf("ads: read/write response declares %d data bytes, got %d", r.Length, len(data)-8)
	}
	r.Data = make([]byte, r.Length)
	copy(r.Data, data[8:8+r.Length])
	return nil
}

type WriteControlRequest struct {
	ADSState    ADSState
	DeviceState uint16
	Length      uint32
	Data        []byte
}

func (w *WriteControlRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8+len(w.Data))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(w.ADSState))
	binary.LittleEndian.PutUint16(buf[2:4], w.DeviceState)
	binary.LittleEndian.PutUint32(buf[4:8], w.Length)
	copy(buf[8:], w.Data)
	return buf, nil
}

func (w *WriteControlRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("ads: write control request requires at least 8 bytes, got %d", len(data))
	}
	w.ADSState = ADSState(binary.LittleEndian.Uint16(data[0:2]))
	w.DeviceState = binary.LittleEndian.Uint16(data[2:4])
	w.Length = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

type WriteControlResponse struct {
	Result uint32
}

func (w *WriteControlResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], w.Result)
	return buf, nil
}

func (w *WriteControlResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("ads: write control response requires 4 bytes, got %d", len(data))
	}
	w.Result = binary.LittleEndian.Uint32(data[0:4])
	return nil
}

// GetSymbolHandleByNameRequest retrieves a handle for a symbol name.
// Sent as a ReadWrite with IndexGroup 0xF003 and the name as write data.
type GetSymbolHandleByNameRequest struct {
	SymbolName string
}

func (r *GetSymbolHandleByNameRequest) MarshalBinary() ([]byte, error) {
	// Symbol name as null-terminated string.
	buf := make([]byte, len(r.SymbolName)+1)
	copy(buf, r.SymbolName)
	return buf, nil
}

// GetSymbolHandleByNameResponse contains the symbol handle.
type GetSymbolHandleByNameResponse struct {
	Handle uint32
}

func (r *GetSymbolHandleByNameResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("ads: symbol handle response requires 4 bytes, got %d", len(data))
	}
	r.Handle = binary.LittleEndian.Uint32(data[0:4])
	return nil
}

// ReleaseSymbolHandleRequest releases a symbol handle.
// Sent as a Write with IndexGroup 0xF006 and the handle as data.
type ReleaseSymbolHandleRequest struct {
	Handle uint32
}

func (r *ReleaseSymbolHandleRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], r.Handle)
	return buf, nil
}

func (r *ReleaseSymbolHandleRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("ads: release handle request requires 4 bytes, got %d", len(data))
	}
	r.Handle = binary.LittleEndian.Uint32(data[0:4])
	return nil
}
