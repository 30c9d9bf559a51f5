package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

// PMStore implements store.PMStore.
type PMStore struct {
	db *sql.DB
}

func (s *PMStore) CreateMessage(ctx context.Context, pm *store.PMMessage) error {
	if pm.ID == uuid.Nil {
		pm.ID = store.NewID()
	}
	if pm.Created.IsZero() {
		pm.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pm_messages (id, from_member_id, to_member_id, mid, redirected_mid, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		pm.ID, pm.FromMemberID, pm.ToMemberID, pm.MID, pm.RedirectedMID, pm.Created)
	return err
}

func (s *PMStore) GetByRedirectedMID(ctx context.Context, mid int, toMemberID uuid.UUID) (*store.PMMessage, error) {
	var pm store.PMMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT id, from_member_id, to_member_id, mid, redirected_mid, created_at
		 FROM pm_messages
		 WHERE redirected_mid = $1 AND to_member_id = $2
		 ORDER BY created_at DESC LIMIT 1`, mid, toMemberID).
		Scan(&pm.ID, &pm.FromMemberID, &pm.ToMemberID, &pm.MID, &pm.RedirectedMID, &pm.Created)
	return noRowsNil(&pm, err)
}

func (s *PMStore) Ban(ctx context.Context, fromMemberID, toMemberID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pm_bans (id, from_member_id, to_member_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (from_member_id, to_member_id) DO NOTHING`,
		store.NewID(), fromMemberID, toMemberID, time.Now())
	return err
}

func (s *PMStore) Unban(ctx context.Context, fromMemberID, toMemberID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pm_bans WHERE from_member_id = $1 AND to_member_id = $2`,
		fromMemberID, toMemberID)
	return err
}

func (s *PMStore) IsBanned(ctx context.Context, fromMemberID, toMemberID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM pm_bans WHERE from_member_id = $1 AND to_member_id = $2`,
		fromMemberID, toMemberID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
