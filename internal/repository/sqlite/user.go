package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, login, email, avatar_url, points, badges,
	merged_prs, cancelled_prs, created_at, updated_at`

// Upsert inserts or updates a user based on their GitHub ID.
//
// If a user with this github_id already exists we KEEP their internal ID and
// refresh only the profile fields (login/email/avatar may change on GitHub).
// The ledger columns are deliberately untouched here — they belong to
// UpdateLedger and must not be clobbered by a profile sync.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		user.ID = existingID
		user.UpdatedAt = time.Now()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.Login,
			user.Email,
			user.AvatarURL,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
	} else {
		now := time.Now()
		user.ID = xid.New().String()
		user.CreatedAt = now
		user.UpdatedAt = now

		badges, merged, cancelled, err := marshalLedger(user)
		if err != nil {
			return err
		}

		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO users
				(id, github_id, login, email, avatar_url, points, badges,
				 merged_prs, cancelled_prs, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID,
			user.GitHubID,
			user.Login,
			user.Email,
			user.AvatarURL,
			user.Points,
			badges,
			merged,
			cancelled,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
		}
	}

	return nil
}

// UpdateLedger persists the reconciler-owned fields: points, badges and the
// two entry lists. Profile fields are not touched, mirroring Upsert's split.
func (db *DB) UpdateLedger(ctx context.Context, user *model.User) error {
	badges, merged, cancelled, err := marshalLedger(user)
	if err != nil {
		return err
	}

	user.UpdatedAt = time.Now()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET points = ?, badges = ?, merged_prs = ?, cancelled_prs = ?, updated_at = ?
		 WHERE id = ?`,
		user.Points,
		badges,
		merged,
		cancelled,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating ledger for user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserWhere(ctx, "id = ?", id)
}

// GetUserByGitHubID retrieves a user by their numeric GitHub ID.
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getUserWhere(ctx, "github_id = ?", githubID)
}

// GetUserByLogin retrieves a user by GitHub login. Login is not UNIQUE in the
// schema (GitHub logins can be reassigned over time), so this returns the
// earliest-created match — the identity resolver's last-resort path.
func (db *DB) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return db.getUserWhere(ctx, "login = ? ORDER BY created_at LIMIT 1", login)
}

func (db *DB) getUserWhere(ctx context.Context, where string, arg any) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user %v: %w", arg, err)
	}
	return u, nil
}

// ListUsers returns a page of users ordered by creation time.
func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 ORDER BY created_at
		 LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// TopByPoints returns up to limit users ordered by points descending —
// the leaderboard query. Ties break on login so the ordering is stable.
func (db *DB) TopByPoints(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 ORDER BY points DESC, login
		 LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing leaderboard: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// marshalLedger serialises the three JSON columns. Nil slices are stored as
// "[]" so reads never have to special-case NULL.
func marshalLedger(user *model.User) (badges, merged, cancelled []byte, err error) {
	if badges, err = json.Marshal(emptyIfNil(user.Badges)); err != nil {
		return nil, nil, nil, fmt.Errorf("sqlite: marshalling badges: %w", err)
	}
	if merged, err = json.Marshal(emptyIfNil(user.Merged)); err != nil {
		return nil, nil, nil, fmt.Errorf("sqlite: marshalling merged entries: %w", err)
	}
	if cancelled, err = json.Marshal(emptyIfNil(user.Cancelled)); err != nil {
		return nil, nil, nil, fmt.Errorf("sqlite: marshalling cancelled entries: %w", err)
	}
	return badges, merged, cancelled, nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u                         model.User
		badges, merged, cancelled []byte
	)
	err := s.Scan(
		&u.ID,
		&u.GitHubID,
		&u.Login,
		&u.Email,
		&u.AvatarURL,
		&u.Points,
		&badges,
		&merged,
		&cancelled,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(badges, &u.Badges); err != nil {
		return nil, fmt.Errorf("unmarshalling badges for user %s: %w", u.ID, err)
	}
	if err := json.Unmarshal(merged, &u.Merged); err != nil {
		return nil, fmt.Errorf("unmarshalling merged entries for user %s: %w", u.ID, err)
	}
	if err := json.Unmarshal(cancelled, &u.Cancelled); err != nil {
		return nil, fmt.Errorf("unmarshalling cancelled entries for user %s: %w", u.ID, err)
	}

	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]model.User, error) {
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return out, nil
}
