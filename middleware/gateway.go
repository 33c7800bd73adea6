package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrpasztoradam/goadsrt"
)

// Gateway bridges HTTP requests to one goadsrt client. Symbol handles are
// cached per name; the client re-resolves them after reconnects on its own.
type Gateway struct {
	client *goadsrt.Client
	device *goadsrt.Device
	config *Config

	handlesMu sync.Mutex
	handles   map[string]*goadsrt.Handle
}

// NewGateway creates a gateway over an already connected client.
func NewGateway(client *goadsrt.Client, device *goadsrt.Device, config *Config) *Gateway {
	return &Gateway{
		client:  client,
		device:  device,
		config:  config,
		handles: make(map[string]*goadsrt.Handle),
	}
}

// handle returns the cached handle for a symbol name.
func (g *Gateway) handle(name string) *goadsrt.Handle {
	g.handlesMu.Lock()
	defer g.handlesMu.Unlock()
	h, ok := g.handles[name]
	if !ok {
		h = g.device.Symbol(name)
		g.handles[name] = h
	}
	return h
}

// ReadSymbol reads size bytes of a symbol's value.
func (g *Gateway) ReadSymbol(ctx context.Context, name string, size int) (*SymbolValueResponse, error) {
	if size < 1 || size > g.config.Gateway.MaxReadSize {
		return nil, NewInvalidRequestError(
			fmt.Sprintf("size must be between 1 and %d", g.config.Gateway.MaxReadSize))
	}

	buf := make([]byte, size)
	if err := g.handle(name).ReadInto(ctx, buf); err != nil {
		return nil, FromClientError(name, err)
	}

	return &SymbolValueResponse{
		Symbol:    name,
		Data:      buf,
		Size:      size,
		Timestamp: time.Now().UTC(),
	}, nil
}

// WriteSymbol writes a symbol's value.
func (g *Gateway) WriteSymbol(ctx context.Context, name string, data []byte) (*WriteSymbolResponse, error) {
	if len(data) == 0 {
		return nil, NewInvalidRequestError("data cannot be empty")
	}

	if err := g.handle(name).Write(ctx, data); err != nil {
		return nil, FromClientError(name, err)
	}

	return &WriteSymbolResponse{Symbol: name, Written: len(data)}, nil
}

// GetHealth reports the transport state.
func (g *Gateway) GetHealth() *HealthResponse {
	state := g.client.ConnState()
	status := "degraded"
	if state == goadsrt.ConnConnected {
		status = "healthy"
	}
	return &HealthResponse{
		Status:     status,
		Connection: state.String(),
		Timestamp:  time.Now().UTC(),
	}
}

// GetInfo reads PLC device identity.
func (g *Gateway) GetInfo(ctx context.Context) (*InfoResponse, error) {
	info, err := g.device.Info(ctx)
	if err != nil {
		return nil, FromClientError("", err)
	}
	return &InfoResponse{
		Target:     g.config.PLC.Target,
		AMSNetID:   g.config.PLC.AMSNetID,
		AMSPort:    g.config.PLC.AMSPort,
		DeviceName: info.Name,
		Version:    fmt.Sprintf("%d.%d.%d", info.Major, info.Minor, info.Build),
	}, nil
}

// GetState reads the PLC run state.
func (g *Gateway) GetState(ctx context.Context) (*StateResponse, error) {
	state, err := g.device.ReadState(ctx)
	if err != nil {
		return nil, FromClientError("", err)
	}
	return &StateResponse{
		ADSState:    state.ADSState.String(),
		DeviceState: state.DeviceState,
	}, nil
}

// Control executes a PLC state transition command.
func (g *Gateway) Control(ctx context.Context, command string) (*ControlResponse, error) {
	var target goadsrt.AdsState
	switch command {
	case "start":
		target = goadsrt.StateRun
	case "stop":
		target = goadsrt.StateStop
	case "reset":
		target = goadsrt.StateReset
	default:
		return nil, NewInvalidRequestError(
			fmt.Sprintf("unknown command %q (must be start, stop, or reset)", command))
	}

	if err := g.device.WriteControl(ctx, target, 0, nil); err != nil {
		return nil, FromClientError("", err)
	}

	state, err := g.device.ReadState(ctx)
	if err != nil {
		return nil, FromClientError("", err)
	}
	return &ControlResponse{
		Command:  command,
		ADSState: state.ADSState.String(),
	}, nil
}
