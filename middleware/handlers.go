package middleware

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Handler contains the HTTP request handlers.
type Handler struct {
	gateway    *Gateway
	subManager *SubscriptionManager
	upgrader   *websocket.Upgrader
}

// NewHandler creates a new handler.
func NewHandler(gateway *Gateway) *Handler {
	return &Handler{
		gateway:    gateway,
		subManager: NewSubscriptionManager(gateway),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleReadSymbol handles POST /api/v1/symbols/{name}/read.
func (h *Handler) HandleReadSymbol(w http.ResponseWriter, r *http.Request) {
	symbolName := chi.URLParam(r, "name")
	if symbolName == "" {
		WriteError(w, NewInvalidRequestError("symbol name is required"))
		return
	}

	var req ReadSymbolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid JSON body"))
		return
	}

	result, err := h.gateway.ReadSymbol(r.Context(), symbolName, req.Size)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// HandleWriteSymbol handles POST /api/v1/symbols/{name}/write.
func (h *Handler) HandleWriteSymbol(w http.ResponseWriter, r *http.Request) {
	symbolName := chi.URLParam(r, "name")
	if symbolName == "" {
		WriteError(w, NewInvalidRequestError("symbol name is required"))
		return
	}

	var req WriteSymbolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid JSON body"))
		return
	}

	result, err := h.gateway.WriteSymbol(r.Context(), symbolName, req.Data)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.gateway.GetHealth())
}

// HandleInfo handles GET /api/v1/info.
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	result, err := h.gateway.GetInfo(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleGetState handles GET /api/v1/state.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	result, err := h.gateway.GetState(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// HandleControl handles POST /api/v1/control.
func (h *Handler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid JSON body"))
		return
	}

	if req.Command == "" {
		WriteError(w, NewInvalidRequestError("command is required"))
		return
	}

	result, err := h.gateway.Control(r.Context(), req.Command)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// HandleWebSocket handles WebSocket connections for notification streaming.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.subManager.HandleConnection(conn)
}
