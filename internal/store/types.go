package store

import (
	"time"

	"github.com/google/uuid"
)

// User is a transport-level identity. It exists independent of any group.
type User struct {
	ID      uuid.UUID
	TGID    int64 // Telegram user id
	Name    string
	Created time.Time
}

// Group is one anonymous room, backed by its own bot endpoint.
type Group struct {
	ID        uuid.UUID
	Username  string // bot username, unique
	Token     string // bot token of the group's endpoint
	CreatorID uuid.UUID
	Disabled  bool
	Welcome   string
	Rules     string
	NMembers  int
	NMessages int
	Created   time.Time
	Updated   time.Time
}

// Member is a (User, Group) pair. The User field is populated by joins
// on every read path that returns members.
type Member struct {
	ID           uuid.UUID
	GroupID      uuid.UUID
	UserID       uuid.UUID
	User         *User
	Role         Role
	PinnedMask   string // empty = rotate
	LastMask     string
	LastActivity time.Time
	NMessages    int
	Created      time.Time
}

// Message is an original member-authored message. MID is the transport
// message id in the sender's private chat with the group bot.
type Message struct {
	ID       uuid.UUID
	GroupID  uuid.UUID
	MemberID uuid.UUID
	Mask     string
	MID      int
	Created  time.Time
}

// RedirectedMessage binds an original Message to the copy delivered to
// one recipient. At most one row exists per (message, recipient); it is
// the index that makes later edit/delete/pin/reply target the right
// per-recipient message id.
type RedirectedMessage struct {
	ID         uuid.UUID
	MessageID  uuid.UUID
	ToMemberID uuid.UUID
	MID        int
	Created    time.Time
}

// PMMessage is the private-message analogue of RedirectedMessage:
// MID is the sender-side id, RedirectedMID the copy the recipient got.
type PMMessage struct {
	ID            uuid.UUID
	FromMemberID  uuid.UUID
	ToMemberID    uuid.UUID
	MID           int
	RedirectedMID int
	Created       time.Time
}

// PMBan is a directed deny-list entry: FromMember may no longer send
// private messages to ToMember.
type PMBan struct {
	ID           uuid.UUID
	FromMemberID uuid.UUID
	ToMemberID   uuid.UUID
	Created      time.Time
}

// Ban is one typed restriction. MemberID is uuid.Nil for group-wide
// entries. A nil Expires means permanent.
type Ban struct {
	ID       uuid.UUID
	GroupID  uuid.UUID
	MemberID uuid.UUID
	Type     BanType
	Expires  *time.Time
	Created  time.Time
}

// Expired reports whether the entry has lapsed at the given instant.
// Permanent entries never expire.
func (b *Ban) Expired(now time.Time) bool {
	return b.Expires != nil && !b.Expires.After(now)
}

// MaskEntry persists one mask holding so pools survive restarts.
type MaskEntry struct {
	GroupID  uuid.UUID
	MemberID uuid.UUID
	Mask     string
	Updated  time.Time
}

// InviteCode entitles its redeemer to create groups.
type InviteCode struct {
	ID       uuid.UUID
	Code     string
	Days     int // membership credit granted on redemption
	UsedByID uuid.UUID
	UsedAt   *time.Time
	Created  time.Time
}

// Used reports whether the code has already been redeemed.
func (c *InviteCode) Used() bool {
	return c.UsedByID != uuid.Nil
}

// NewID returns a fresh v7 UUID for a row the engine creates.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
