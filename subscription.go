package goadsrt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrpasztoradam/goadsrt/internal/ads"
	"github.com/mrpasztoradam/goadsrt/internal/ams"
)

// TransmissionMode controls when the device generates notifications.
type TransmissionMode = ads.TransmissionMode

const (
	// TransServerCycle delivers the value every cycle.
	TransServerCycle = ads.TransModeServerCycle
	// TransServerOnChange delivers the value only when it changed.
	TransServerOnChange = ads.TransModeServerOnChange
)

// defaultSubscriptionBuffer is the channel capacity used when Attributes
// leaves Buffer zero.
const defaultSubscriptionBuffer = 16

// Attributes configures a device notification.
type Attributes struct {
	// Length is the number of bytes observed per sample.
	Length uint32
	// Mode selects cyclic or on-change delivery.
	Mode TransmissionMode
	// MaxDelay is how long the device may batch samples before sending.
	MaxDelay time.Duration
	// CycleTime is how often the device samples the value.
	CycleTime time.Duration
	// Buffer is the local channel capacity; 0 means a small default. When
	// the consumer falls behind, the oldest pending notification is not
	// awaited: new samples are dropped and counted instead of stalling the
	// read loop.
	Buffer int
}

// Notification is one sample delivered for a subscription.
type Notification struct {
	// Timestamp is the device-side sampling time.
	Timestamp time.Time
	// Data is the sampled value. The slice is owned by the receiver.
	Data []byte
}

// Subscription is one registered device notification. Samples arrive on
// Notifications until Close.
type Subscription struct {
	client *Client
	device *Device
	handle uint32

	// deliverMu orders deliver against Close: a frame that raced the
	// subscription lookup on the read loop must never send on a closed
	// channel.
	deliverMu sync.Mutex
	closed    bool
	ch        chan Notification
	dropped   atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// AddNotification registers a device notification on an index group and
// offset. The returned Subscription must be closed to release the device
// resource.
func (d *Device) AddNotification(ctx context.Context, indexGroup, indexOffset uint32, attrs Attributes) (*Subscription, error) {
	req := ads.AddDeviceNotificationRequest{
		IndexGroup:       indexGroup,
		IndexOffset:      indexOffset,
		Length:           attrs.Length,
		TransmissionMode: attrs.Mode,
		MaxDelay:         uint32(attrs.MaxDelay / time.Millisecond),
		CycleTime:        uint32(attrs.CycleTime / time.Millisecond),
	}
	payload, _ := req.MarshalBinary()

	resp, err := d.client.request(ctx, ads.CmdAddDeviceNotification, d.addr, payload)
	if err != nil {
		return nil, fmt.Errorf("goadsrt: add notification 0x%X:0x%X: %w", indexGroup, indexOffset, err)
	}

	var ar ads.AddDeviceNotificationResponse
	if err := ar.UnmarshalBinary(resp.Data); err != nil {
		return nil, fmt.Errorf("goadsrt: add notification 0x%X:0x%X: %w", indexGroup, indexOffset, err)
	}
	if res := ads.Error(ar.Result); res.IsError() {
		return nil, fmt.Errorf("goadsrt: add notification 0x%X:0x%X: %w", indexGroup, indexOffset, res)
	}

	buffer := attrs.Buffer
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sub := &Subscription{
		client: d.client,
		device: d,
		handle: ar.NotificationHandle,
		ch:     make(chan Notification, buffer),
	}

	c := d.client
	c.subsMu.Lock()
	c.subs[sub.handle] = sub
	active := len(c.subs)
	c.subsMu.Unlock()
	c.metrics.SubscriptionsActive(active)

	return sub, nil
}

// Notifications returns the sample channel. It is closed by Close.
func (s *Subscription) Notifications() <-chan Notification {
	return s.ch
}

// NotificationHandle returns the device-assigned handle.
func (s *Subscription) NotificationHandle() uint32 {
	return s.handle
}

// Dropped returns how many samples were discarded because the consumer fell
// behind the channel buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// deliver hands one sample to the consumer without blocking. Runs on the
// read loop. Samples arriving after Close are discarded.
func (s *Subscription) deliver(n Notification) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- n:
	default:
		s.dropped.Add(1)
		s.client.metrics.NotificationDropped()
	}
}

// closeDeleteTimeout bounds the delete request issued by Close, which has no
// caller context.
const closeDeleteTimeout = 5 * time.Second

// Close unregisters the notification on the device and closes the sample
// channel. Safe to call multiple times; later calls return the first
// result.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		c := s.client
		c.subsMu.Lock()
		delete(c.subs, s.handle)
		active := len(c.subs)
		c.subsMu.Unlock()
		c.metrics.SubscriptionsActive(active)

		// The read loop may already hold a reference from before the map
		// delete; mark closed under deliverMu so no late frame can reach
		// the channel once it closes.
		s.deliverMu.Lock()
		s.closed = true
		close(s.ch)
		s.deliverMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), closeDeleteTimeout)
		defer cancel()

		req := ads.DeleteDeviceNotificationRequest{NotificationHandle: s.handle}
		payload, _ := req.MarshalBinary()

		resp, err := c.request(ctx, ads.CmdDelDeviceNotification, s.device.addr, payload)
		if err != nil {
			s.closeErr = fmt.Errorf("goadsrt: delete notification %d: %w", s.handle, err)
			return
		}
		var dr ads.DeleteDeviceNotificationResponse
		if err := dr.UnmarshalBinary(resp.Data); err != nil {
			s.closeErr = fmt.Errorf("goadsrt: delete notification %d: %w", s.handle, err)
			return
		}
		if res := ads.Error(dr.Result); res.IsError() {
			s.closeErr = fmt.Errorf("goadsrt: delete notification %d: %w", s.handle, res)
		}
	})
	return s.closeErr
}

// handleNotification decodes one DeviceNotification frame and routes its
// samples to their subscriptions. Runs on the read loop and never blocks;
// frames for unknown handles are dropped.
func (c *Client) handleNotification(pkt *ams.Packet) {
	var stream ads.NotificationStream
	if err := stream.UnmarshalBinary(pkt.Data); err != nil {
		c.log.Warn("notification stream discarded", "error", err.Error())
		return
	}

	for i := range stream.Stamps {
		stamp := &stream.Stamps[i]
		ts := stamp.Time()
		for j := range stamp.Samples {
			sample := &stamp.Samples[j]

			c.subsMu.RLock()
			sub, ok := c.subs[sample.NotificationHandle]
			c.subsMu.RUnlock()
			if !ok {
				c.log.Debug("notification for unknown handle dropped",
					"handle", sample.NotificationHandle)
				continue
			}

			c.metrics.NotificationReceived()
			sub.deliver(Notification{Timestamp: ts, Data: sample.Data})
		}
	}
}
