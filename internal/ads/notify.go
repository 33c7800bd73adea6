package ads

import (
	"encoding/binary"
	"fmt"
	"time"
)

// TransmissionMode controls when the device generates notifications.
type TransmissionMode uint32

const (
	TransModeNone           TransmissionMode = 0
	TransModeServerCycle    TransmissionMode = 3
	TransModeServerOnChange TransmissionMode = 4
)

// AddDeviceNotificationRequest registers interest in a region of device memory.
type AddDeviceNotificationRequest struct {
	IndexGroup       uint32
	IndexOffset      uint32
	Length           uint32
	TransmissionMode TransmissionMode
	MaxDelay         uint32 // milliseconds
	CycleTime        uint32 // milliseconds
	// 16 reserved bytes follow on the wire.
}

func (r *AddDeviceNotificationRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 40)
	binary.LittleEndian.PutUint32(buf[0:4], r.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], r.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], r.Length)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.TransmissionMode))
	binary.LittleEndian.PutUint32(buf[16:20], r.MaxDelay)
	binary.LittleEndian.PutUint32(buf[20:24], r.CycleTime)
	return buf, nil
}

func (r *AddDeviceNotificationRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 40 {
		return fmt.Errorf("ads: add notification request requires 40 bytes, got %d", len(data))
	}
	r.IndexGroup = binary.LittleEndian.Uint32(data[0:4])
	r.IndexOffset = binary.LittleEndian.Uint32(data[4:8])
	r.Length = binary.LittleEndian.Uint32(data[8:12])
	r.TransmissionMode = TransmissionMode(binary.LittleEndian.Uint32(data[12:16]))
	r.MaxDelay = binary.LittleEndian.Uint32(data[16:20])
	r.CycleTime = binary.LittleEndian.Uint32(data[20:24])
	return nil
}

// AddDeviceNotificationResponse carries the handle assigned by the device.
type AddDeviceNotificationResponse struct {
	Result             uint32
	NotificationHandle uint32
}

func (r *AddDeviceNotificationResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], r.Result)
	binary.LittleEndian.PutUint32(buf[4:8], r.NotificationHandle)
	return buf, nil
}

func (r *AddDeviceNotificationResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("ads: add notification response requires 8 bytes, got %d", len(data))
	}
	r.Result = binary.LittleEndian.Uint32(data[0:4])
	r.NotificationHandle = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

// DeleteDeviceNotificationRequest removes a previously added notification.
type DeleteDeviceNotificationRequest struct {
	NotificationHandle uint32
}

func (r *DeleteDeviceNotificationRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], r.NotificationHandle)
	return buf, nil
}

func (r *DeleteDeviceNotificationRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("ads: delete notification request requires 4 bytes, got %d", len(data))
	}
	r.NotificationHandle = binary.LittleEndian.Uint32(data[0:4])
	return nil
}

// DeleteDeviceNotificationResponse acknowledges the deletion.
type DeleteDeviceNotificationResponse struct {
	Result uint32
}

func (r *DeleteDeviceNotificationResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], r.Result)
	return buf, nil
}

func (r *DeleteDeviceNotificationResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("ads: delete notification response requires 4 bytes, got %d", len(data))
	}
	r.Result = binary.LittleEndian.Uint32(data[0:4])
	return nil
}

// NotificationStream is the payload of a DeviceNotification frame:
// a length, a stamp count, then per stamp a FILETIME timestamp and a list of
// samples, each tagged by its notification handle.
type NotificationStream struct {
	Stamps []NotificationStamp
}

// NotificationStamp groups samples that share one generation timestamp.
type NotificationStamp struct {
	Timestamp uint64 // Windows FILETIME: 100ns intervals since 1601-01-01 UTC
	Samples   []NotificationSample
}

// Time converts the stamp's FILETIME to a time.Time.
func (s *NotificationStamp) Time() time.Time {
	// 100ns intervals between 1601-01-01 and 1970-01-01.
	const fileTimeEpoch = 116444736000000000
	if s.Timestamp < fileTimeEpoch {
		return time.Unix(0, 0)
	}
	return time.Unix(0, int64(s.Timestamp-fileTimeEpoch)*100)
}

// NotificationSample is one observed value for one notification handle.
type NotificationSample struct {
	NotificationHandle uint32
	Data               []byte
}

func (n *NotificationStream) MarshalBinary() ([]byte, error) {
	size := 8
	for _, stamp := range n.Stamps {
		size += 12
		for _, sample := range stamp.Samples {
			size += 8 + len(sample.Data)
		}
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size-4))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(n.Stamps)))
	off := 8
	for _, stamp := range n.Stamps {
		binary.LittleEndian.PutUint64(buf[off:off+8], stamp.Timestamp)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(len(stamp.Samples)))
		off += 12
		for _, sample := range stamp.Samples {
			binary.LittleEndian.PutUint32(buf[off:off+4], sample.NotificationHandle)
			binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(len(sample.Data)))
			off += 8
			copy(buf[off:], sample.Data)
			off += len(sample.Data)
		}
	}
	return buf, nil
}

func (n *NotificationStream) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("ads: notification stream requires at least 8 bytes, got %d", len(data))
	}
	// Leading length field covers everything after itself.
	declared := binary.LittleEndian.Uint32(data[0:4])
	if uint32(len(data)-4) < declared {
		return fmt.Errorf("ads: notification stream declares %d bytes, got %d", declared, len(data)-4)
	}
	stampCount := binary.LittleEndian.Uint32(data[4:8])
	off := 8

	n.Stamps = make([]NotificationStamp, 0, stampCount)
	for i := uint32(0); i < stampCount; i++ {
		if len(data)-off < 12 {
			return fmt.Errorf("ads: notification stamp %d truncated", i)
		}
		stamp := NotificationStamp{
			Timestamp: binary.LittleEndian.Uint64(data[off : off+8]),
		}
		sampleCount := binary.LittleEndian.Uint32(data[off+8 : off+12])
		off += 12

		stamp.Samples = make([]NotificationSample, 0, sampleCount)
		for j := uint32(0); j < sampleCount; j++ {
			if len(data)-off < 8 {
				return fmt.Errorf("ads: notification sample %d/%d truncated", i, j)
			}
			handle := binary.LittleEndian.Uint32(data[off : off+4])
			size := binary.LittleEndian.Uint32(data[off+4 : off+8])
			off += 8
			if uint32(len(data)-off) < size {
				return fmt.Errorf("ads: notification sample %d/%d declares %d bytes, got %d", i, j, size, len(data)-off)
			}
			sample := NotificationSample{
				NotificationHandle: handle,
				Data:               make([]byte, size),
			}
			copy(sample.Data, data[off:off+int(size)])
			off += int(size)
			stamp.Samples = append(stamp.Samples, sample)
		}
		n.Stamps = append(n.Stamps, stamp)
	}
	return nil
}
