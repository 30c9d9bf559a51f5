package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/masquebot/masquebot/internal/store"
)

// GroupStore implements store.GroupStore.
type GroupStore struct {
	db *sql.DB
}

const groupCols = `id, username, token, creator_id, disabled, welcome, rules,
	n_members, n_messages, created_at, updated_at`

func (s *GroupStore) Create(ctx context.Context, g *store.Group) error {
	if g.ID == uuid.Nil {
		g.ID = store.NewID()
	}
	now := time.Now()
	if g.Created.IsZero() {
		g.Created = now
	}
	g.Updated = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (`+groupCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		g.ID, g.Username, g.Token, g.CreatorID, g.Disabled, g.Welcome, g.Rules,
		g.NMembers, g.NMessages, g.Created, g.Updated)
	return err
}

func (s *GroupStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Group, error) {
	return noRowsNil(scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupCols+` FROM groups WHERE id = $1`, id)))
}

func (s *GroupStore) GetByUsername(ctx context.Context, username string) (*store.Group, error) {
	return noRowsNil(scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupCols+` FROM groups WHERE username = $1`, username)))
}

func (s *GroupStore) ListEnabled(ctx context.Context) ([]*store.Group, error) {
	return s.list(ctx, `SELECT `+groupCols+` FROM groups WHERE NOT disabled ORDER BY created_at`)
}

func (s *GroupStore) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*store.Group, error) {
	return s.list(ctx, `SELECT `+groupCols+` FROM groups WHERE creator_id = $1 ORDER BY created_at`, creatorID)
}

func (s *GroupStore) list(ctx context.Context, query string, args ...any) ([]*store.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*store.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (s *GroupStore) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE groups SET disabled = $1, updated_at = $2 WHERE id = $3`,
		disabled, time.Now(), id)
	return err
}

func (s *GroupStore) SetWelcome(ctx context.Context, id uuid.UUID, welcome, rules string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE groups SET welcome = $1, rules = $2, updated_at = $3 WHERE id = $4`,
		welcome, rules, time.Now(), id)
	return err
}

func (s *GroupStore) BumpMembers(ctx context.Context, id uuid.UUID, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE groups SET n_members = n_members + $1 WHERE id = $2`, delta, id)
	return err
}

func (s *GroupStore) BumpMessages(ctx context.Context, id uuid.UUID, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE groups SET n_messages = n_messages + $1 WHERE id = $2`, delta, id)
	return err
}

func scanGroup(sc scanner) (*store.Group, error) {
	var g store.Group
	if err := sc.Scan(&g.ID, &g.Username, &g.Token, &g.CreatorID, &g.Disabled,
		&g.Welcome, &g.Rules, &g.NMembers, &g.NMessages, &g.Created, &g.Updated); err != nil {
		return nil, err
	}
	return &g, nil
}

// noRowsNil maps sql.ErrNoRows to the (nil, nil) read convention.
func noRowsNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}
