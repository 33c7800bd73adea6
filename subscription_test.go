package goadsrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribeCounter(t *testing.T, plc *testPLC, attrs Attributes) (*Client, *Subscription) {
	t.Helper()
	plc.setSymbol("MAIN.counter", []byte{0, 0, 0, 0})
	client, device := plc.connect(t)

	sub, err := device.Symbol("MAIN.counter").Subscribe(context.Background(), attrs)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return client, sub
}

func TestSubscriptionDelivery(t *testing.T) {
	plc := newTestPLC(t)
	_, sub := subscribeCounter(t, plc, Attributes{
		Length: 4, Mode: TransServerOnChange, CycleTime: 10 * time.Millisecond,
	})

	sent := time.Now().UTC()
	plc.pushNotification(sub.NotificationHandle(), sent, []byte{5, 0, 0, 0})

	select {
	case n := <-sub.Notifications():
		assert.Equal(t, []byte{5, 0, 0, 0}, n.Data)
		assert.WithinDuration(t, sent, n.Timestamp, time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	assert.Zero(t, sub.Dropped())
}

func TestSubscriptionDropsWhenConsumerStalls(t *testing.T) {
	plc := newTestPLC(t)
	_, sub := subscribeCounter(t, plc, Attributes{Length: 4, Buffer: 1})

	now := time.Now()
	for i := byte(1); i <= 3; i++ {
		plc.pushNotification(sub.NotificationHandle(), now, []byte{i, 0, 0, 0})
	}

	deadline := time.Now().Add(2 * time.Second)
	for sub.Dropped() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Dropped() = %d, want 2", sub.Dropped())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The buffered sample is the first one; the stalled consumer lost the
	// later ones, not the oldest.
	n := <-sub.Notifications()
	assert.Equal(t, []byte{1, 0, 0, 0}, n.Data)
}

func TestSubscriptionClose(t *testing.T) {
	plc := newTestPLC(t)
	_, sub := subscribeCounter(t, plc, Attributes{Length: 4})

	require.NoError(t, sub.Close())

	plc.mu.Lock()
	remaining := len(plc.notifyHandles)
	plc.mu.Unlock()
	assert.Zero(t, remaining, "device-side notification not deleted")

	_, open := <-sub.Notifications()
	assert.False(t, open, "channel must be closed after Close")

	// Close is idempotent.
	require.NoError(t, sub.Close())
}

func TestSubscriptionCloseUnknownHandle(t *testing.T) {
	plc := newTestPLC(t)
	_, sub := subscribeCounter(t, plc, Attributes{Length: 4})

	// The device already forgot the notification.
	plc.mu.Lock()
	delete(plc.notifyHandles, sub.NotificationHandle())
	plc.mu.Unlock()

	err := sub.Close()
	require.Error(t, err)
	var adsErr AdsError
	require.ErrorAs(t, err, &adsErr)
	assert.Equal(t, ErrDeviceNotifyHandle, adsErr)

	// The first result sticks.
	assert.Equal(t, err, sub.Close())
}

func TestNotificationRacingCloseIsDiscarded(t *testing.T) {
	plc := newTestPLC(t)
	_, sub := subscribeCounter(t, plc, Attributes{Length: 4})

	require.NoError(t, sub.Close())

	// The read loop can still hold a reference fetched before Close
	// removed the map entry. A sample arriving through it must be
	// discarded, not sent on the closed channel.
	sub.deliver(Notification{Timestamp: time.Now(), Data: []byte{1, 0, 0, 0}})

	_, open := <-sub.Notifications()
	assert.False(t, open)
	assert.Zero(t, sub.Dropped(), "post-close samples are discarded, not counted as drops")
}

func TestNotificationForUnknownHandleDropped(t *testing.T) {
	plc := newTestPLC(t)
	_, sub := subscribeCounter(t, plc, Attributes{Length: 4})

	plc.pushNotification(0xDEAD, time.Now(), []byte{9, 9, 9, 9})
	plc.pushNotification(sub.NotificationHandle(), time.Now(), []byte{1, 0, 0, 0})

	// The frame for the known handle still arrives; the unknown one is
	// discarded without disturbing the read loop.
	select {
	case n := <-sub.Notifications():
		assert.Equal(t, []byte{1, 0, 0, 0}, n.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestSubscriptionMetrics(t *testing.T) {
	plc := newTestPLC(t)
	plc.setSymbol("MAIN.counter", []byte{0, 0, 0, 0})
	metrics := NewInMemoryMetrics()
	_, device := plc.connect(t, WithMetrics(metrics))

	sub, err := device.Symbol("MAIN.counter").Subscribe(context.Background(), Attributes{Length: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Subscriptions())

	plc.pushNotification(sub.NotificationHandle(), time.Now(), []byte{1, 0, 0, 0})
	select {
	case <-sub.Notifications():
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	received, _ := metrics.Notifications()
	assert.Equal(t, uint64(1), received)

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, metrics.Subscriptions())
}
