package goadsrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRequiresTarget(t *testing.T) {
	_, _, err := Connect()
	require.Error(t, err)
}

func TestConnectFailsFast(t *testing.T) {
	_, _, err := Connect(
		WithTarget("127.0.0.1:1"),
		WithTimeouts(Timeouts{Connect: 200 * time.Millisecond}),
	)
	require.ErrorIs(t, err, ErrConnectFailed)
}

func TestReadState(t *testing.T) {
	plc := newTestPLC(t)
	_, device := plc.connect(t)

	state, err := device.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRun, state.ADSState)
}

func TestDeviceInfo(t *testing.T) {
	plc := newTestPLC(t)
	_, device := plc.connect(t)

	info, err := device.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Plc30 App", info.Name)
	assert.Equal(t, "Plc30 App 3.1.4024", info.String())
}

func TestWriteControlAndWaitState(t *testing.T) {
	plc := newTestPLC(t)
	_, device := plc.connect(t)
	ctx := context.Background()

	require.NoError(t, device.WriteControl(ctx, StateStop, 0, nil))

	state, err := device.ReadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateStop, state.ADSState)

	require.NoError(t, device.WriteControl(ctx, StateRun, 0, nil))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, device.WaitState(waitCtx, StateRun))
}

func TestRequestTimeoutBounded(t *testing.T) {
	plc := newTestPLC(t)
	_, device := plc.connect(t, WithTimeouts(Timeouts{
		Connect: time.Second,
		Read:    150 * time.Millisecond,
		Write:   time.Second,
	}))

	// The PLC swallows the next request; the default ceiling must fire
	// even though the context has no deadline.
	plc.silentOne.Store(true)

	start := time.Now()
	_, err := device.ReadState(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// The connection is unaffected; the next request succeeds.
	_, err = device.ReadState(context.Background())
	require.NoError(t, err)
}

func TestContextDeadlineTightensTimeout(t *testing.T) {
	plc := newTestPLC(t)
	_, device := plc.connect(t, WithTimeouts(Timeouts{Read: 10 * time.Second}))

	plc.silentOne.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := device.ReadState(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnectionLossFailsInFlightAndRecovers(t *testing.T) {
	plc := newTestPLC(t)
	plc.setSymbol("MAIN.counter", []byte{1, 0, 0, 0})
	client, device := plc.connect(t)
	ctx := context.Background()

	counter := device.Symbol("MAIN.counter")
	value, err := ReadValue[uint32](ctx, counter)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), value)

	session := client.SessionID()
	resolvesBefore := plc.resolves.Load()

	// The socket dies while the request is in flight: the caller fails
	// fast with ErrConnectionLost, nobody waits out a timeout.
	plc.dropNext.Store(true)
	start := time.Now()
	_, err = ReadValue[uint32](ctx, counter)
	require.ErrorIs(t, err, ErrConnectionLost)
	assert.Less(t, time.Since(start), 2*time.Second)

	waitConnected(t, client, session)

	// Old handles are gone with the session; the next use re-resolves
	// without caller involvement.
	plc.revokeHandles()
	value, err = ReadValue[uint32](ctx, counter)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), value)
	assert.Greater(t, plc.resolves.Load(), resolvesBefore)
}

func TestMetricsCollected(t *testing.T) {
	plc := newTestPLC(t)
	metrics := NewInMemoryMetrics()
	_, device := plc.connect(t, WithMetrics(metrics))

	_, err := device.ReadState(context.Background())
	require.NoError(t, err)

	stats := metrics.Operation("read_state")
	assert.Equal(t, uint64(1), stats.Count)
	assert.Equal(t, uint64(0), stats.Errors)
	assert.Equal(t, "connected", metrics.State())
}

func TestCloseResolvesOutstanding(t *testing.T) {
	plc := newTestPLC(t)
	client, device := plc.connect(t, WithTimeouts(Timeouts{Read: time.Minute}))

	plc.silentOne.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := device.ReadState(context.Background())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("request did not resolve on Close")
	}
}
