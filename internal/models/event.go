package models

import (
	"fmt"
	"time"
)

// RequestEventType 标识连接请求生命周期中的事件类型
type RequestEventType string

const (
	EventRequestCreated  RequestEventType = "request.created"
	EventRequestAccepted RequestEventType = "request.accepted"
	EventRequestRejected RequestEventType = "request.rejected"
	EventRequestIgnored  RequestEventType = "request.ignored"
)

// EventTypeForStatus maps a request status to the event emitted on entering it.
func EventTypeForStatus(s RequestStatus) RequestEventType {
	switch s {
	case RequestStatusAccepted:
		return EventRequestAccepted
	case RequestStatusRejected:
		return EventRequestRejected
	case RequestStatusIgnored:
		return EventRequestIgnored
	default:
		return EventRequestCreated
	}
}

// RequestEvent is published after a connection request is created or resolved.
type RequestEvent struct {
	Type        RequestEventType `json:"type"`
	RequestID   uint             `json:"requestId"`
	SenderID    uint             `json:"senderId"`
	RecipientID uint             `json:"recipientId"`
	Status      RequestStatus    `json:"status"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Consistent reports whether the event carries a known status that matches its type.
func (e RequestEvent) Consistent() bool {
	return e.Status.Valid() && EventTypeForStatus(e.Status) == e.Type
}

// NewRequestEvent builds the event describing r's current status.
func NewRequestEvent(r *ConnectionRequest) RequestEvent {
	return RequestEvent{
		Type:        EventTypeForStatus(r.Status),
		RequestID:   r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Status:      r.Status,
		Timestamp:   time.Now().UTC(),
	}
}

// PartitionKey keeps every event of one user pair on the same partition.
func (e RequestEvent) PartitionKey() []byte {
	low, high := CanonicalPair(e.SenderID, e.RecipientID)
	return []byte(fmt.Sprintf("%d-%d", low, high))
}
