package apiserver

import (
	"net/http"

	"connect-go/internal/models"
	"connect-go/internal/services"
)

// ConnectionRequestHandler handles the connection request and feed endpoints.
type ConnectionRequestHandler struct {
	ledger services.ConnectionRequestService
	feed   services.FeedService
}

// NewConnectionRequestHandler creates a new ConnectionRequestHandler.
func NewConnectionRequestHandler(ledger services.ConnectionRequestService, feed services.FeedService) *ConnectionRequestHandler {
	return &ConnectionRequestHandler{ledger: ledger, feed: feed}
}

// SendRequest handles POST /api/v1/requests
func (h *ConnectionRequestHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	senderID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload SendRequestPayload
	if !decodeAndValidate(w, r, &payload) {
		return
	}
	req, err := h.ledger.CreateRequest(r.Context(), senderID, payload.RecipientID)
	if err != nil {
		writeServiceError(w, err, "发送连接请求")
		return
	}
	writeJSONResponse(w, http.StatusCreated, req)
}

// Accept handles POST /api/v1/requests/{requestID}/accept
func (h *ConnectionRequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.RequestStatusAccepted)
}

// Reject handles POST /api/v1/requests/{requestID}/reject
func (h *ConnectionRequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.RequestStatusRejected)
}

// Ignore handles POST /api/v1/requests/{requestID}/ignore; only the sender may call it.
func (h *ConnectionRequestHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.RequestStatusIgnored)
}

func (h *ConnectionRequestHandler) transition(w http.ResponseWriter, r *http.Request, status models.RequestStatus) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	req, err := h.ledger.Transition(r.Context(), requestID, userID, status)
	if err != nil {
		writeServiceError(w, err, "处理连接请求")
		return
	}
	writeJSONResponse(w, http.StatusOK, req)
}

// GetRequest handles GET /api/v1/requests/{requestID}
func (h *ConnectionRequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	req, err := h.ledger.GetRequest(r.Context(), requestID, userID)
	if err != nil {
		writeServiceError(w, err, "获取连接请求")
		return
	}
	writeJSONResponse(w, http.StatusOK, req)
}

// ListReceived handles GET /api/v1/requests/received
func (h *ConnectionRequestHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.ledger.ListReceived(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "获取收到的请求")
		return
	}
	writeJSONResponse(w, http.StatusOK, list)
}

// ListSent handles GET /api/v1/requests/sent
func (h *ConnectionRequestHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.ledger.ListSent(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "获取发出的请求")
		return
	}
	writeJSONResponse(w, http.StatusOK, list)
}

// ListAccepted handles GET /api/v1/requests/accepted
func (h *ConnectionRequestHandler) ListAccepted(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	users, err := h.ledger.ListAcceptedSenders(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "获取已接受的请求")
		return
	}
	writeJSONResponse(w, http.StatusOK, users)
}

// Feed handles GET /api/v1/feed
func (h *ConnectionRequestHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	users, err := h.feed.ComputeFeed(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "获取推荐列表")
		return
	}
	writeJSONResponse(w, http.StatusOK, users)
}

// Connections handles GET /api/v1/connections
func (h *ConnectionRequestHandler) Connections(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	users, err := h.feed.ListConnections(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "获取连接列表")
		return
	}
	writeJSONResponse(w, http.StatusOK, users)
}
