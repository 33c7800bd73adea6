package ads

import "fmt"

// Error is an ADS error code reported by the remote device, either in the
// AMS header or in a command's Result field.
type Error uint32

const (
	ErrNoError               Error = 0x0000
	ErrInternal              Error = 0x0001
	ErrNoRuntime             Error = 0x0002
	ErrTargetPortNotFound    Error = 0x0006
	ErrTargetMachineNotFound Error = 0x0007
	ErrPortNotConnected      Error = 0x0018

	ErrDeviceError              Error = 0x0700
	ErrDeviceServiceNotSupp     Error = 0x0701
	ErrDeviceInvalidIndexGroup  Error = 0x0702
	ErrDeviceInvalidIndexOffset Error = 0x0703
	ErrDeviceInvalidAccess      Error = 0x0704
	ErrDeviceInvalidSize        Error = 0x0705
	ErrDeviceInvalidData        Error = 0x0706
	ErrDeviceNotReady           Error = 0x0707
	ErrDeviceBusy               Error = 0x0708
	ErrDeviceNoMemory           Error = 0x070A
	ErrDeviceNotFound           Error = 0x070C
	ErrDeviceSymbolNotFound     Error = 0x0710
	ErrDeviceSymbolVersion      Error = 0x0711
	ErrDeviceInvalidState       Error = 0x0712
	ErrDeviceTransModeNotSupp   Error = 0x0713
	ErrDeviceNotifyHandle       Error = 0x0714
	ErrDeviceClientUnknown      Error = 0x0715
	ErrDeviceNoMoreHandles      Error = 0x0716
	ErrDeviceWatchSize          Error = 0x0717
	ErrDeviceNotInitialized     Error = 0x0718
	ErrDeviceTimeout            Error = 0x0719
	ErrDeviceSymbolNotActive    Error = 0x0722
	ErrDeviceAccessDenied       Error = 0x0723
)

func (e Error) Error() string {
	switch e {
	case ErrNoError:
		return "no error"
	case ErrInternal:
		return "internal error"
	case ErrNoRuntime:
		return "no runtime"
	case ErrTargetPortNotFound:
		return "target port not found"
	case ErrTargetMachineNotFound:
		return "target machine not found"
	case ErrPortNotConnected:
		return "port not connected"
	case ErrDeviceError:
		return "device error"
	case ErrDeviceServiceNotSupp:
		return "service is not supported by device"
	case ErrDeviceInvalidIndexGroup:
		return "invalid index group"
	case ErrDeviceInvalidIndexOffset:
		return "invalid index offset"
	case ErrDeviceInvalidAccess:
		return "reading/writing not permitted"
	case ErrDeviceInvalidSize:
		return "parameter size not correct"
	case ErrDeviceInvalidData:
		return "invalid parameter value"
	case ErrDeviceNotReady:
		return "device not in a ready state"
	case ErrDeviceBusy:
		return "device busy"
	case ErrDeviceNoMemory:
		return "out of memory"
	case ErrDeviceNotFound:
		return "not found"
	case ErrDeviceSymbolNotFound:
		return "symbol not found"
	case ErrDeviceSymbolVersion:
		return "symbol version invalid"
	case ErrDeviceInvalidState:
		return "server in invalid state"
	case ErrDeviceTransModeNotSupp:
		return "transmission mode not supported"
	case ErrDeviceNotifyHandle:
		return "notification handle is invalid"
	case ErrDeviceClientUnknown:
		return "notification client not registered"
	case ErrDeviceNoMoreHandles:
		return "no more notification handles"
	case ErrDeviceWatchSize:
		return "notification size too large"
	case ErrDeviceNotInitialized:
		return "device not initialized"
	case ErrDeviceTimeout:
		return "device has a timeout"
	case ErrDeviceSymbolNotActive:
		return "symbol not active"
	case ErrDeviceAccessDenied:
		return "access denied"
	default:
		return fmt.Sprintf("ADS error 0x%04X", uint32(e))
	}
}

func (e Error) IsError() bool {
	return e != ErrNoError
}

// IsHandleInvalid reports whether the code means a previously resolved
// symbol handle is no longer recognized by the remote. A handle used after a
// PLC program download or restart typically fails with one of these.
func (e Error) IsHandleInvalid() bool {
	switch e {
	case ErrDeviceSymbolNotFound, ErrDeviceSymbolVersion, ErrDeviceSymbolNotActive:
		return true
	default:
		return false
	}
}
