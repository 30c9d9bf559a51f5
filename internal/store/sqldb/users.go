package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/masquebot/masquebot/internal/store"
)

// UserStore implements store.UserStore.
type UserStore struct {
	db *sql.DB
}

func (s *UserStore) GetByTGID(ctx context.Context, tgid int64) (*store.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, tg_id, name, created_at FROM users WHERE tg_id = $1`, tgid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *UserStore) Ensure(ctx context.Context, tgid int64, name string) (*store.User, error) {
	u, err := s.GetByTGID(ctx, tgid)
	if err != nil {
		return nil, err
	}
	if u != nil {
		if name != "" && u.Name != name {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE users SET name = $1 WHERE id = $2`, name, u.ID); err != nil {
				return nil, err
			}
			u.Name = name
		}
		return u, nil
	}

	u = &store.User{ID: store.NewID(), TGID: tgid, Name: name, Created: time.Now()}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, tg_id, name, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (tg_id) DO NOTHING`,
		u.ID, u.TGID, u.Name, u.Created)
	if err != nil {
		return nil, err
	}
	// Re-read in case a concurrent insert won the conflict.
	return s.GetByTGID(ctx, tgid)
}

func scanUser(sc scanner) (*store.User, error) {
	var u store.User
	if err := sc.Scan(&u.ID, &u.TGID, &u.Name, &u.Created); err != nil {
		return nil, err
	}
	return &u, nil
}
