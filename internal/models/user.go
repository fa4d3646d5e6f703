package models

import "time"

// Gender 是用户资料中允许的性别取值。
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

const (
	DefaultPhotoURL = "https://i.pravatar.cc/150"
	DefaultAbout    = "No information provided."
)

// User 代表系统中的用户。
// connections 与 sent/received 请求列表不直接存放在此表中，
// 而是分别由 user_connections 与 user_request_refs 两张表维护。
type User struct {
	BaseModel
	FirstName    string   `gorm:"type:varchar(100);not null" json:"firstName"`
	LastName     string   `gorm:"type:varchar(100);not null" json:"lastName"`
	Email        string   `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string   `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	Age          *int     `json:"age,omitempty"`
	Gender       Gender   `gorm:"type:varchar(10)" json:"gender,omitempty"`
	PhotoURL     string   `gorm:"type:varchar(512)" json:"photoUrl"`
	About        string   `gorm:"type:text" json:"about"`
	Skills       []string `gorm:"serializer:json" json:"skills"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}

// UserPublic is the credential-free projection of a User returned by the feed,
// connection lists and request listings.
type UserPublic struct {
	ID        uint      `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Age       *int      `json:"age,omitempty"`
	Gender    Gender    `json:"gender,omitempty"`
	PhotoURL  string    `json:"photoUrl"`
	About     string    `json:"about"`
	Skills    []string  `json:"skills"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips the credential fields from u.
func (u *User) Public() UserPublic {
	skills := u.Skills
	if skills == nil {
		skills = []string{}
	}
	return UserPublic{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Age:       u.Age,
		Gender:    u.Gender,
		PhotoURL:  u.PhotoURL,
		About:     u.About,
		Skills:    skills,
		CreatedAt: u.CreatedAt,
	}
}

// PublicUsers projects a slice of users.
func PublicUsers(users []User) []UserPublic {
	out := make([]UserPublic, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out
}

// UserConnection is one direction of an accepted connection. A connection
// between A and B is stored as the two rows (A,B) and (B,A).
type UserConnection struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	PeerID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"peerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定 UserConnection 模型的表名。
func (UserConnection) TableName() string {
	return "user_connections"
}

// RequestRole tells on which side of a request a user sits.
type RequestRole string

const (
	RoleSent     RequestRole = "sent"
	RoleReceived RequestRole = "received"
)

// UserRequestRef is an entry of a user's active sentRequests or
// receivedRequests list. Only pending requests are referenced.
type UserRequestRef struct {
	UserID    uint        `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	RequestID uint        `gorm:"primaryKey;autoIncrement:false;index" json:"requestId"`
	Role      RequestRole `gorm:"type:varchar(10);not null;index" json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

// TableName 指定 UserRequestRef 模型的表名。
func (UserRequestRef) TableName() string {
	return "user_request_refs"
}
