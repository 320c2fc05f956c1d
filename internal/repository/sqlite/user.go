package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/videotube/internal/apperror"
	"github.com/sakif/videotube/internal/model"
	"github.com/sakif/videotube/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, full_name, avatar, cover_image, password,
	refresh_token, created_at, updated_at`

// Create inserts a new user. The ID is an xid: 20 URL-safe characters,
// sortable by creation time.
//
// A UNIQUE violation on username or email comes back as apperror.ErrConflict,
// which is how a registration that lost a race is reported.
func (db *DB) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.WatchHistory == nil {
		u.WatchHistory = []string{}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning tx: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.Email,
		u.FullName,
		u.Avatar,
		u.CoverImage,
		u.Password,
		nullString(u.RefreshToken),
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if field := uniqueViolation(err); field != "" {
			return apperror.Conflict(field, "User with email or username already exists")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", u.Username, err)
	}

	for i, videoID := range u.WatchHistory {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO watch_history (user_id, position, video_id) VALUES (?, ?, ?)`,
			u.ID, i, videoID); err != nil {
			return fmt.Errorf("sqlite: inserting watch history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user %q: %w", u.Username, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	if err := db.loadWatchHistory(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByUsernameOrEmail is the store side of "username OR email" lookups used
// by login and by the registration pre-check.
func (db *DB) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	if username == "" && email == "" {
		return nil, apperror.NotFoundMessage("User does not exist")
	}

	// An empty argument must not match anything; NULLIF turns it into NULL,
	// and NULL = x is never true.
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE username = NULLIF(?, '') OR email = NULLIF(?, '')
		 ORDER BY created_at
		 LIMIT 1`,
		username, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("User does not exist")
		}
		return nil, fmt.Errorf("sqlite: finding user by username/email: %w", err)
	}

	if err := db.loadWatchHistory(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetRefreshToken overwrites (or, with nil, clears) the stored refresh token.
// No other column is touched, so nothing else gets revalidated or rehashed.
func (db *DB) SetRefreshToken(ctx context.Context, id string, token *string) error {
	return db.updateColumn(ctx, id, "refresh_token", nullString(token))
}

// SetPassword stores an already-hashed password.
func (db *DB) SetPassword(ctx context.Context, id, hash string) error {
	return db.updateColumn(ctx, id, "password", hash)
}

// Update applies the non-nil fields of upd and returns the fresh record,
// like a findByIdAndUpdate with "return the new document".
func (db *DB) Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	add("full_name", upd.FullName)
	add("email", upd.Email)
	add("avatar", upd.Avatar)
	add("cover_image", upd.CoverImage)

	if len(sets) == 0 {
		return db.GetUserByID(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if field := uniqueViolation(err); field != "" {
			return nil, apperror.Conflict(field, "User with email or username already exists")
		}
		return nil, fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("user", id)
	}

	return db.GetUserByID(ctx, id)
}

// updateColumn sets one column plus updated_at. col is always a constant
// from this file, never user input.
func (db *DB) updateColumn(ctx context.Context, id, col string, value any) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET `+col+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: updating %s for user %s: %w", col, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (db *DB) loadWatchHistory(ctx context.Context, u *model.User) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT video_id FROM watch_history WHERE user_id = ? ORDER BY position`, u.ID)
	if err != nil {
		return fmt.Errorf("sqlite: loading watch history for %s: %w", u.ID, err)
	}
	defer rows.Close()

	u.WatchHistory = []string{}
	for rows.Next() {
		var videoID string
		if err := rows.Scan(&videoID); err != nil {
			return fmt.Errorf("sqlite: scanning watch history: %w", err)
		}
		u.WatchHistory = append(u.WatchHistory, videoID)
	}
	return rows.Err()
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u       model.User
		refresh sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.Avatar,
		&u.CoverImage,
		&u.Password,
		&refresh,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if refresh.Valid {
		u.RefreshToken = &refresh.String
	}
	return &u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
