package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

// MessageStore implements store.MessageStore: originals plus the
// per-recipient redirect map used for reply targeting and /delete.
type MessageStore struct {
	db *sql.DB
}

const messageCols = `id, group_id, member_id, mask, mid, created_at`

func (s *MessageStore) Create(ctx context.Context, m *store.Message) error {
	if m.ID == uuid.Nil {
		m.ID = store.NewID()
	}
	if m.Created.IsZero() {
		m.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.GroupID, m.MemberID, m.Mask, m.MID, m.Created)
	return err
}

func (s *MessageStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Message, error) {
	return noRowsNil(scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE id = $1`, id)))
}

func (s *MessageStore) GetByMID(ctx context.Context, mid int, memberID uuid.UUID) (*store.Message, error) {
	return noRowsNil(scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE mid = $1 AND member_id = $2
		 ORDER BY created_at DESC LIMIT 1`, mid, memberID)))
}

func (s *MessageStore) SaveRedirect(ctx context.Context, r *store.RedirectedMessage) error {
	if r.ID == uuid.Nil {
		r.ID = store.NewID()
	}
	if r.Created.IsZero() {
		r.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO redirected_messages (id, message_id, to_member_id, mid, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.MessageID, r.ToMemberID, r.MID, r.Created)
	return err
}

func (s *MessageStore) RedirectFor(ctx context.Context, messageID, toMemberID uuid.UUID) (*store.RedirectedMessage, error) {
	return noRowsNil(scanRedirect(s.db.QueryRowContext(ctx,
		`SELECT id, message_id, to_member_id, mid, created_at FROM redirected_messages
		 WHERE message_id = $1 AND to_member_id = $2`, messageID, toMemberID)))
}

func (s *MessageStore) RedirectByMID(ctx context.Context, mid int, toMemberID uuid.UUID) (*store.RedirectedMessage, error) {
	return noRowsNil(scanRedirect(s.db.QueryRowContext(ctx,
		`SELECT id, message_id, to_member_id, mid, created_at FROM redirected_messages
		 WHERE mid = $1 AND to_member_id = $2
		 ORDER BY created_at DESC LIMIT 1`, mid, toMemberID)))
}

func scanMessage(sc scanner) (*store.Message, error) {
	var m store.Message
	if err := sc.Scan(&m.ID, &m.GroupID, &m.MemberID, &m.Mask, &m.MID, &m.Created); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanRedirect(sc scanner) (*store.RedirectedMessage, error) {
	var r store.RedirectedMessage
	if err := sc.Scan(&r.ID, &r.MessageID, &r.ToMemberID, &r.MID, &r.Created); err != nil {
		return nil, err
	}
	return &r, nil
}
