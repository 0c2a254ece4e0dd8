package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/contribtrack/internal/apperror"
	"github.com/sakif/contribtrack/internal/model"
	"github.com/sakif/contribtrack/internal/repository"
)

// compile-time check that *DB implements repository.RepoCatalog
var _ repository.RepoCatalog = (*DB)(nil)

// SaveRepo inserts or updates a registered repository keyed by its URL.
// Point-value edits go through here; the next reconciliation pass picks them
// up because points are always re-derived from current values.
func (db *DB) SaveRepo(ctx context.Context, repo *model.RegisteredRepo) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM registered_repos WHERE url = ?`, repo.URL,
	).Scan(&existingID)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up repo %s: %w", repo.URL, err)
	}

	if existingID != "" {
		repo.ID = existingID
		repo.UpdatedAt = time.Now()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE registered_repos
			 SET point_value = ?, approved = ?, updated_at = ?
			 WHERE id = ?`,
			repo.PointValue,
			repo.Approved,
			repo.UpdatedAt,
			repo.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating repo %s: %w", repo.URL, err)
		}
		return nil
	}

	now := time.Now()
	repo.ID = xid.New().String()
	repo.CreatedAt = now
	repo.UpdatedAt = now
	if repo.PointValue <= 0 {
		repo.PointValue = model.DefaultPointValue
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO registered_repos (id, url, point_value, approved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		repo.ID,
		repo.URL,
		repo.PointValue,
		repo.Approved,
		repo.CreatedAt,
		repo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting repo %s: %w", repo.URL, err)
	}

	return nil
}

// GetRepoByURL retrieves a registered repository by canonical URL.
func (db *DB) GetRepoByURL(ctx context.Context, url string) (*model.RegisteredRepo, error) {
	var r model.RegisteredRepo

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, url, point_value, approved, created_at, updated_at
		 FROM registered_repos WHERE url = ?`,
		url,
	).Scan(
		&r.ID,
		&r.URL,
		&r.PointValue,
		&r.Approved,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("repository", url)
		}
		return nil, fmt.Errorf("sqlite: getting repo %s: %w", url, err)
	}

	return &r, nil
}

// ListApprovedRepos returns every approved repository in the catalog.
// The badge calculator uses this set to decide which merged entries still
// count toward contribution-count tiers.
func (db *DB) ListApprovedRepos(ctx context.Context) ([]model.RegisteredRepo, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, url, point_value, approved, created_at, updated_at
		 FROM registered_repos
		 WHERE approved = 1
		 ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing approved repos: %w", err)
	}
	defer rows.Close()

	var out []model.RegisteredRepo
	for rows.Next() {
		var r model.RegisteredRepo
		if err := rows.Scan(
			&r.ID, &r.URL, &r.PointValue, &r.Approved,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning repo row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating repos: %w", err)
	}

	return out, nil
}
