package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stores is the top-level container for all repositories. Both the
// standalone (SQLite) and managed (Postgres) modes provide all of them.
type Stores struct {
	Users    UserStore
	Groups   GroupStore
	Members  MemberStore
	Messages MessageStore
	PMs      PMStore
	Bans     BanStore
	Masks    MaskStore
	Codes    CodeStore
}

// Read methods return (nil, nil) when the row does not exist; a non-nil
// error always means the lookup itself failed.

type UserStore interface {
	GetByTGID(ctx context.Context, tgid int64) (*User, error)
	// Ensure upserts by Telegram id and refreshes the display name.
	Ensure(ctx context.Context, tgid int64, name string) (*User, error)
}

type GroupStore interface {
	Create(ctx context.Context, g *Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	GetByUsername(ctx context.Context, username string) (*Group, error)
	ListEnabled(ctx context.Context) ([]*Group, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*Group, error)
	SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error
	SetWelcome(ctx context.Context, id uuid.UUID, welcome, rules string) error
	BumpMembers(ctx context.Context, id uuid.UUID, delta int) error
	BumpMessages(ctx context.Context, id uuid.UUID, delta int) error
}

type MemberStore interface {
	Create(ctx context.Context, m *Member) error
	Get(ctx context.Context, groupID, userID uuid.UUID) (*Member, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Member, error)
	GetByTGID(ctx context.Context, groupID uuid.UUID, tgid int64) (*Member, error)
	// UserMembers is the fan-out snapshot: every member whose role is
	// above LEFT and not BANNED, joined with its user, ordered by join
	// time.
	UserMembers(ctx context.Context, groupID uuid.UUID) ([]*Member, error)
	SetRole(ctx context.Context, id uuid.UUID, role Role) error
	SetPinnedMask(ctx context.Context, id uuid.UUID, mask string) error
	// Touch records activity: last mask, last-activity timestamp and
	// the message counter.
	Touch(ctx context.Context, id uuid.UUID, mask string, at time.Time) error
}

type MessageStore interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	// GetByMID finds an original by its sender-side transport id.
	GetByMID(ctx context.Context, mid int, memberID uuid.UUID) (*Message, error)
	SaveRedirect(ctx context.Context, r *RedirectedMessage) error
	// RedirectFor looks up by (original message, recipient).
	RedirectFor(ctx context.Context, messageID, toMemberID uuid.UUID) (*RedirectedMessage, error)
	// RedirectByMID looks up by (recipient-side transport id, recipient).
	RedirectByMID(ctx context.Context, mid int, toMemberID uuid.UUID) (*RedirectedMessage, error)
}

type PMStore interface {
	CreateMessage(ctx context.Context, pm *PMMessage) error
	GetByRedirectedMID(ctx context.Context, mid int, toMemberID uuid.UUID) (*PMMessage, error)
	// Ban is idempotent; Unban of a missing entry is a no-op.
	Ban(ctx context.Context, fromMemberID, toMemberID uuid.UUID) error
	Unban(ctx context.Context, fromMemberID, toMemberID uuid.UUID) error
	IsBanned(ctx context.Context, fromMemberID, toMemberID uuid.UUID) (bool, error)
}

type BanStore interface {
	// MemberBanned / GroupBanned report an unexpired entry of the type.
	MemberBanned(ctx context.Context, memberID uuid.UUID, t BanType) (bool, error)
	GroupBanned(ctx context.Context, groupID uuid.UUID, t BanType) (bool, error)
	ListMember(ctx context.Context, memberID uuid.UUID) ([]*Ban, error)
	Set(ctx context.Context, b *Ban) error
	ClearMember(ctx context.Context, memberID uuid.UUID, t BanType) error
	ClearGroup(ctx context.Context, groupID uuid.UUID, t BanType) error
}

type MaskStore interface {
	Holdings(ctx context.Context, groupID uuid.UUID) ([]*MaskEntry, error)
	Upsert(ctx context.Context, e *MaskEntry) error
	Delete(ctx context.Context, groupID, memberID uuid.UUID) error
}

type CodeStore interface {
	Create(ctx context.Context, c *InviteCode) error
	Get(ctx context.Context, code string) (*InviteCode, error)
	MarkUsed(ctx context.Context, code string, userID uuid.UUID, at time.Time) error
	// UsedBy reports whether the user has redeemed any code.
	UsedBy(ctx context.Context, userID uuid.UUID) (bool, error)
}
