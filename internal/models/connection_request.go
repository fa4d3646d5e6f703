package models

// RequestStatus 定义连接请求的状态
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
	RequestStatusIgnored  RequestStatus = "ignored" // sender withdraws their own request
)

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected, RequestStatusIgnored:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusAccepted, RequestStatusRejected, RequestStatusIgnored:
		return true
	}
	return false
}

// transitions lists every legal edge of the request state machine together with
// the party allowed to take it. Anything not listed is rejected.
var transitions = map[RequestStatus]map[RequestStatus]RequestRole{
	RequestStatusPending: {
		RequestStatusAccepted: RoleReceived,
		RequestStatusRejected: RoleReceived,
		RequestStatusIgnored:  RoleSent,
	},
}

// RequiredRole returns the party that may move a request from "from" to "to",
// and false when the edge does not exist.
func RequiredRole(from, to RequestStatus) (RequestRole, bool) {
	role, ok := transitions[from][to]
	return role, ok
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to RequestStatus) bool {
	_, ok := RequiredRole(from, to)
	return ok
}

// ConnectionRequest 代表一个连接请求记录
//
// PairLow/PairHigh hold the sorted (sender, recipient) ids. storage.AutoMigrateTables
// adds a partial unique index on them restricted to pending rows.
type ConnectionRequest struct {
	BaseModel
	SenderID    uint          `gorm:"not null;index:idx_request_sender_status" json:"senderId"`
	RecipientID uint          `gorm:"not null;index:idx_request_recipient_status" json:"recipientId"`
	Status      RequestStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_request_sender_status;index:idx_request_recipient_status" json:"status"`
	PairLow     uint          `gorm:"not null;index:idx_request_pair" json:"-"`
	PairHigh    uint          `gorm:"not null;index:idx_request_pair" json:"-"`
}

// TableName 指定 ConnectionRequest 模型的表名。
func (ConnectionRequest) TableName() string {
	return "connection_requests"
}

// EnsureCanonicalOrder fills PairLow/PairHigh from the sender and recipient.
// This should be called before creating a ConnectionRequest record.
func (r *ConnectionRequest) EnsureCanonicalOrder() {
	r.PairLow, r.PairHigh = CanonicalPair(r.SenderID, r.RecipientID)
}

// RoleOf returns the side userID sits on, and false for a non-party.
func (r *ConnectionRequest) RoleOf(userID uint) (RequestRole, bool) {
	switch userID {
	case r.SenderID:
		return RoleSent, true
	case r.RecipientID:
		return RoleReceived, true
	}
	return "", false
}

// Counterpart returns the other party of the request as seen from userID.
func (r *ConnectionRequest) Counterpart(userID uint) uint {
	if userID == r.SenderID {
		return r.RecipientID
	}
	return r.SenderID
}

// CanonicalPair orders two user ids so that the smaller one comes first.
func CanonicalPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// RequestWithUser is a DTO that carries a request together with the public
// profile of the other party (the sender for received lists, the recipient for
// sent lists). Useful for API responses.
type RequestWithUser struct {
	ConnectionRequest
	User *UserPublic `json:"user"`
}
