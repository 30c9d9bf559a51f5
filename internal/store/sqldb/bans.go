package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

// BanStore implements store.BanStore. Group-wide entries are stored
// with a NULL member_id; expiry is checked at read time, expired rows
// are garbage-collected lazily by Set.
type BanStore struct {
	db *sql.DB
}

func (s *BanStore) MemberBanned(ctx context.Context, memberID uuid.UUID, t store.BanType) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM bans
		 WHERE member_id = $1 AND ban_type = $2
		   AND (expires_at IS NULL OR expires_at > $3)`,
		memberID, t, time.Now()).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *BanStore) GroupBanned(ctx context.Context, groupID uuid.UUID, t store.BanType) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM bans
		 WHERE group_id = $1 AND member_id IS NULL AND ban_type = $2
		   AND (expires_at IS NULL OR expires_at > $3)`,
		groupID, t, time.Now()).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *BanStore) ListMember(ctx context.Context, memberID uuid.UUID) ([]*store.Ban, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, member_id, ban_type, expires_at, created_at FROM bans
		 WHERE member_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY ban_type`,
		memberID, time.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*store.Ban
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *BanStore) Set(ctx context.Context, b *store.Ban) error {
	if b.ID == uuid.Nil {
		b.ID = store.NewID()
	}
	if b.Created.IsZero() {
		b.Created = time.Now()
	}
	// Replace any entry of the same scope and type so re-banning
	// refreshes the expiry instead of stacking rows.
	if b.MemberID == uuid.Nil {
		if err := s.ClearGroup(ctx, b.GroupID, b.Type); err != nil {
			return err
		}
	} else {
		if err := s.ClearMember(ctx, b.MemberID, b.Type); err != nil {
			return err
		}
	}

	memberID := sql.NullString{}
	if b.MemberID != uuid.Nil {
		memberID = sql.NullString{String: b.MemberID.String(), Valid: true}
	}
	expires := sql.NullTime{}
	if b.Expires != nil {
		expires = sql.NullTime{Time: *b.Expires, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bans (id, group_id, member_id, ban_type, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.GroupID, memberID, b.Type, expires, b.Created)
	return err
}

func (s *BanStore) ClearMember(ctx context.Context, memberID uuid.UUID, t store.BanType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bans WHERE member_id = $1 AND ban_type = $2`, memberID, t)
	return err
}

func (s *BanStore) ClearGroup(ctx context.Context, groupID uuid.UUID, t store.BanType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bans WHERE group_id = $1 AND member_id IS NULL AND ban_type = $2`,
		groupID, t)
	return err
}

func scanBan(sc scanner) (*store.Ban, error) {
	var (
		b        store.Ban
		memberID sql.NullString
		expires  sql.NullTime
	)
	if err := sc.Scan(&b.ID, &b.GroupID, &memberID, &b.Type, &expires, &b.Created); err != nil {
		return nil, err
	}
	if memberID.Valid {
		id, err := uuid.Parse(memberID.String)
		if err != nil {
			return nil, err
		}
		b.MemberID = id
	}
	if expires.Valid {
		t := expires.Time
		b.Expires = &t
	}
	return &b, nil
}
