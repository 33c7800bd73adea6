package ads

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestReadRequestLayout(t *testing.T) {
	req := ReadRequest{IndexGroup: 0xF005, IndexOffset: 0x1234, Length: 4}
	buf, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	if len(buf) != 12 {
		t.Fatalf("length = %d, want 12", len(buf))
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != 0xF005 {
		t.Errorf("index group = 0x%X, want 0xF005", got)
	}
	if got := binary.LittleEndian.Uint32(buf[4:8]); got != 0x1234 {
		t.Errorf("index offset = 0x%X, want 0x1234", got)
	}
	if got := binary.LittleEndian.Uint32(buf[8:12]); got != 4 {
		t.Errorf("length = %d, want 4", got)
	}
}

func TestReadResponseShortData(t *testing.T) {
	// Declared length exceeds available bytes.
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint32(buf[4:8], 100)

	var resp ReadResponse
	if err := resp.UnmarshalBinary(buf); err == nil {
		t.Error("expected error for declared length exceeding data")
	}
}

func TestWriteRequestRoundTrip(t *testing.T) {
	req := WriteRequest{
		IndexGroup:  IndexGroupSymbolValueByHandle,
		IndexOffset: 0xDEAD,
		Length:      3,
		Data:        []byte{1, 2, 3},
	}
	buf, _ := req.MarshalBinary()

	var decoded WriteRequest
	if err := decoded.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded.IndexGroup != req.IndexGroup || decoded.IndexOffset != req.IndexOffset {
		t.Errorf("addressing changed: %+v", decoded)
	}
	if !bytes.Equal(decoded.Data, req.Data) {
		t.Errorf("data = %x, want %x", decoded.Data, req.Data)
	}
}

func TestReadWriteRequestCarriesBothLengths(t *testing.T) {
	name := []byte("MAIN.counter\x00")
	req := ReadWriteRequest{
		IndexGroup:  IndexGroupSymbolHandleByName,
		ReadLength:  4,
		WriteLength: uint32(len(name)),
		Data:        name,
	}
	buf, _ := req.MarshalBinary()

	var decoded ReadWriteRequest
	if err := decoded.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded.ReadLength != 4 {
		t.Errorf("read length = %d, want 4", decoded.ReadLength)
	}
	if !bytes.Equal(decoded.Data, name) {
		t.Errorf("data = %q, want %q", decoded.Data, name)
	}
}

func TestReadStateResponse(t *testing.T) {
	resp := ReadStateResponse{Result: 0, ADSState: StateRun, DeviceState: 3}
	buf, _ := resp.MarshalBinary()

	var decoded ReadStateResponse
	if err := decoded.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded.ADSState != StateRun {
		t.Errorf("ADS state = %v, want run", decoded.ADSState)
	}
	if decoded.DeviceState != 3 {
		t.Errorf("device state = %d, want 3", decoded.DeviceState)
	}
}

func TestReadDeviceInfoResponseName(t *testing.T) {
	resp := ReadDeviceInfoResponse{
		MajorVersion: 3,
		MinorVersion: 1,
		VersionBuild: 4024,
		DeviceName:   "TCatPlcCtrl",
	}
	buf, _ := resp.MarshalBinary()

	var decoded ReadDeviceInfoResponse
	if err := decoded.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded.DeviceName != "TCatPlcCtrl" {
		t.Errorf("device name = %q, want %q", decoded.DeviceName, "TCatPlcCtrl")
	}
	if decoded.MajorVersion != 3 || decoded.MinorVersion != 1 || decoded.VersionBuild != 4024 {
		t.Errorf("version = %d.%d.%d", decoded.MajorVersion, decoded.MinorVersion, decoded.VersionBuild)
	}
}

func TestGetSymbolHandleByNameRequestNullTerminated(t *testing.T) {
	req := GetSymbolHandleByNameRequest{SymbolName: "MAIN.counter"}
	buf, _ := req.MarshalBinary()

	if len(buf) != len("MAIN.counter")+1 {
		t.Fatalf("length = %d, want %d", len(buf), len("MAIN.counter")+1)
	}
	if buf[len(buf)-1] != 0 {
		t.Error("symbol name must be null-terminated on the wire")
	}
}

func TestReleaseSymbolHandleRequestRoundTrip(t *testing.T) {
	req := ReleaseSymbolHandleRequest{Handle: 0xCAFE0042}
	buf, _ := req.MarshalBinary()
	if len(buf) != 4 {
		t.Fatalf("length = %d, want 4", len(buf))
	}

	var got ReleaseSymbolHandleRequest
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if got.Handle != req.Handle {
		t.Errorf("Handle = 0x%X, want 0x%X", got.Handle, req.Handle)
	}

	if err := got.UnmarshalBinary(buf[:3]); err == nil {
		t.Error("UnmarshalBinary accepted short data, want error")
	}
}

func TestADSStateString(t *testing.T) {
	tests := []struct {
		state ADSState
		want  string
	}{
		{StateRun, "run"},
		{StateStop, "stop"},
		{StateConfig, "config"},
		{ADSState(99), "ADSState(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestErrorStrings(t *testing.T) {
	if got := ErrDeviceSymbolNotFound.Error(); got != "symbol not found" {
		t.Errorf("Error() = %q", got)
	}
	if got := Error(0x4242).Error(); got != "ADS error 0x4242" {
		t.Errorf("Error() = %q", got)
	}
	if ErrNoError.IsError() {
		t.Error("code 0 should not report IsError")
	}
}

func TestIsHandleInvalid(t *testing.T) {
	invalid := []Error{ErrDeviceSymbolNotFound, ErrDeviceSymbolVersion, ErrDeviceSymbolNotActive}
	for _, e := range invalid {
		if !e.IsHandleInvalid() {
			t.Errorf("0x%04X should report IsHandleInvalid", uint32(e))
		}
	}
	valid := []Error{ErrNoError, ErrDeviceBusy, ErrDeviceNotifyHandle}
	for _, e := range valid {
		if e.IsHandleInvalid() {
			t.Errorf("0x%04X should not report IsHandleInvalid", uint32(e))
		}
	}
}
