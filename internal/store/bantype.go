package store

import "context"

// BanType enumerates the typed restrictions of the ban matrix.
type BanType int

const (
	BanMessage BanType = iota + 1
	BanMedia
	BanSticker
	BanLink
	BanReceive
	BanPMUser
	BanPMAdmin
	BanPhoto
	BanVideo
	BanDocument
	BanVoice
)

func (t BanType) String() string {
	switch t {
	case BanMessage:
		return "sending messages"
	case BanMedia:
		return "sending medias"
	case BanSticker:
		return "sending stickers"
	case BanLink:
		return "sending links"
	case BanReceive:
		return "receiving messages"
	case BanPMUser:
		return "sending private messages to users"
	case BanPMAdmin:
		return "sending private messages to admins"
	case BanPhoto:
		return "sending photos"
	case BanVideo:
		return "sending videos"
	case BanDocument:
		return "sending documents"
	case BanVoice:
		return "sending voice messages"
	default:
		return "this operation"
	}
}

// CheckBan resolves the composite ban matrix for one member: an
// unexpired per-member entry wins; otherwise, when checkGroup is set,
// the group-wide default mask is consulted. A non-nil returned
// OperationError carries the user-visible reason.
func CheckBan(ctx context.Context, bans BanStore, m *Member, t BanType, checkGroup bool) (bool, error) {
	banned, err := bans.MemberBanned(ctx, m.ID, t)
	if err != nil {
		return false, err
	}
	if !banned && checkGroup {
		banned, err = bans.GroupBanned(ctx, m.GroupID, t)
		if err != nil {
			return false, err
		}
	}
	return banned, nil
}

// RequireNotBanned is the fail=true variant of CheckBan.
func RequireNotBanned(ctx context.Context, bans BanStore, m *Member, t BanType, checkGroup bool) error {
	banned, err := CheckBan(ctx, bans, m, t, checkGroup)
	if err != nil {
		return err
	}
	if banned {
		return NewOperationErrorf("you are banned from %s in this group", t)
	}
	return nil
}
