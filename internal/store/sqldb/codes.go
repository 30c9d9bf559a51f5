package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

// CodeStore implements store.CodeStore.
type CodeStore struct {
	db *sql.DB
}

func (s *CodeStore) Create(ctx context.Context, c *store.InviteCode) error {
	if c.ID == uuid.Nil {
		c.ID = store.NewID()
	}
	if c.Created.IsZero() {
		c.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invite_codes (id, code, days, created_at)
		 VALUES ($1, $2, $3, $4)`,
		c.ID, c.Code, c.Days, c.Created)
	return err
}

func (s *CodeStore) Get(ctx context.Context, code string) (*store.InviteCode, error) {
	var (
		c      store.InviteCode
		usedBy sql.NullString
		usedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, days, used_by, used_at, created_at
		 FROM invite_codes WHERE code = $1`, code).
		Scan(&c.ID, &c.Code, &c.Days, &usedBy, &usedAt, &c.Created)
	if err != nil {
		return noRowsNil(&c, err)
	}
	if usedBy.Valid {
		id, err := uuid.Parse(usedBy.String)
		if err != nil {
			return nil, err
		}
		c.UsedByID = id
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}

func (s *CodeStore) MarkUsed(ctx context.Context, code string, userID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE invite_codes SET used_by = $1, used_at = $2
		 WHERE code = $3 AND used_by IS NULL`,
		userID, at, code)
	return err
}

func (s *CodeStore) UsedBy(ctx context.Context, userID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM invite_codes WHERE used_by = $1`, userID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
