package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

// MaskStore implements store.MaskStore, the persisted side of the
// per-group mask pool.
type MaskStore struct {
	db *sql.DB
}

func (s *MaskStore) Holdings(ctx context.Context, groupID uuid.UUID) ([]*store.MaskEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, member_id, mask, updated_at FROM mask_entries
		 WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*store.MaskEntry
	for rows.Next() {
		var e store.MaskEntry
		if err := rows.Scan(&e.GroupID, &e.MemberID, &e.Mask, &e.Updated); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (s *MaskStore) Upsert(ctx context.Context, e *store.MaskEntry) error {
	if e.Updated.IsZero() {
		e.Updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mask_entries (group_id, member_id, mask, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (group_id, member_id)
		 DO UPDATE SET mask = excluded.mask, updated_at = excluded.updated_at`,
		e.GroupID, e.MemberID, e.Mask, e.Updated)
	return err
}

func (s *MaskStore) Delete(ctx context.Context, groupID, memberID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM mask_entries WHERE group_id = $1 AND member_id = $2`,
		groupID, memberID)
	return err
}
