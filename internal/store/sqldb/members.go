package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

// MemberStore implements store.MemberStore. Reads join the users table
// so fan-out snapshots carry the Telegram chat id without extra queries.
type MemberStore struct {
	db *sql.DB
}

const memberCols = `m.id, m.group_id, m.user_id, m.role, m.pinned_mask, m.last_mask,
	m.last_activity, m.n_messages, m.created_at,
	u.id, u.tg_id, u.name, u.created_at`

const memberFrom = ` FROM members m JOIN users u ON u.id = m.user_id `

func (s *MemberStore) Create(ctx context.Context, m *store.Member) error {
	if m.ID == uuid.Nil {
		m.ID = store.NewID()
	}
	if m.Created.IsZero() {
		m.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, group_id, user_id, role, pinned_mask, last_mask,
		                      last_activity, n_messages, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.GroupID, m.UserID, m.Role, m.PinnedMask, m.LastMask,
		m.LastActivity, m.NMessages, m.Created)
	return err
}

func (s *MemberStore) Get(ctx context.Context, groupID, userID uuid.UUID) (*store.Member, error) {
	return noRowsNil(scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberCols+memberFrom+`WHERE m.group_id = $1 AND m.user_id = $2`,
		groupID, userID)))
}

func (s *MemberStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Member, error) {
	return noRowsNil(scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberCols+memberFrom+`WHERE m.id = $1`, id)))
}

func (s *MemberStore) GetByTGID(ctx context.Context, groupID uuid.UUID, tgid int64) (*store.Member, error) {
	return noRowsNil(scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberCols+memberFrom+`WHERE m.group_id = $1 AND u.tg_id = $2`,
		groupID, tgid)))
}

func (s *MemberStore) UserMembers(ctx context.Context, groupID uuid.UUID) ([]*store.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberCols+memberFrom+
			`WHERE m.group_id = $1 AND m.role > $2 AND m.role != $3
			 ORDER BY m.created_at`,
		groupID, store.RoleLeft, store.RoleBanned)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*store.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *MemberStore) SetRole(ctx context.Context, id uuid.UUID, role store.Role) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET role = $1 WHERE id = $2`, role, id)
	return err
}

func (s *MemberStore) SetPinnedMask(ctx context.Context, id uuid.UUID, mask string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET pinned_mask = $1 WHERE id = $2`, mask, id)
	return err
}

func (s *MemberStore) Touch(ctx context.Context, id uuid.UUID, mask string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET last_mask = $1, last_activity = $2, n_messages = n_messages + 1
		 WHERE id = $3`, mask, at, id)
	return err
}

func scanMember(sc scanner) (*store.Member, error) {
	var (
		m store.Member
		u store.User
	)
	if err := sc.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.PinnedMask, &m.LastMask,
		&m.LastActivity, &m.NMessages, &m.Created,
		&u.ID, &u.TGID, &u.Name, &u.Created); err != nil {
		return nil, err
	}
	m.User = &u
	return &m, nil
}
