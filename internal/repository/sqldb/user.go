package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/model"
	"github.com/sakif/petadopt/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, google_id, facebook_id, username,
	first_name, last_name, avatar_url, profile_setup_completed, created_at, updated_at`

// Create inserts a new user. ID and timestamps are generated here.
//
// The UNIQUE constraints on email, username, google_id and facebook_id are
// the final word on uniqueness: a violation comes back as
// apperror.Conflict(column) so the service layer can retry or report it.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	if user.AvatarURL == "" {
		user.AvatarURL = model.DefaultAvatar
	}

	id := xid.New().String()
	now := time.Now().UTC()

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id,
		user.Email,
		nullString(user.PasswordHash),
		nullString(user.GoogleID),
		nullString(user.FacebookID),
		nullString(user.Username),
		user.FirstName,
		user.LastName,
		user.AvatarURL,
		user.ProfileSetupCompleted,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqldb: inserting user %q: %w", user.Email, asConflict(err))
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if err != nil {
		return nil, notFoundOr(err, "user", id, "getting user")
	}
	return u, nil
}

// GetByEmail retrieves a user by (already normalised) email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email))
	if err != nil {
		return nil, notFoundOr(err, "user with email", email, "getting user by email")
	}
	return u, nil
}

// GetByProviderID retrieves the user linked to providerID at provider.
func (db *DB) GetByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.User, error) {
	column, ok := repository.ProviderColumn(provider)
	if !ok {
		return nil, apperror.ValidationFailed("provider", fmt.Sprintf("Unsupported provider %q", provider))
	}

	// column comes from the whitelist above, never from the request.
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`), providerID))
	if err != nil {
		return nil, notFoundOr(err, string(provider)+" user", providerID, "getting user by provider id")
	}
	return u, nil
}

// LinkProvider attaches providerID to the row with userID, replacing any
// earlier linkage for that provider.
func (db *DB) LinkProvider(ctx context.Context, userID string, provider model.Provider, providerID string) error {
	column, ok := repository.ProviderColumn(provider)
	if !ok {
		return apperror.ValidationFailed("provider", fmt.Sprintf("Unsupported provider %q", provider))
	}

	res, err := db.conn.ExecContext(ctx,
		db.rebind(`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`),
		providerID, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqldb: linking %s to user %s: %w", provider, userID, asConflict(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: linking %s to user %s: %w", provider, userID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// UsernameTaken reports whether any user other than exceptID owns username.
func (db *DB) UsernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		db.rebind(`SELECT COUNT(*) FROM users WHERE username = ? AND id <> ?`),
		username, exceptID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqldb: checking username %q: %w", username, err)
	}
	return count > 0, nil
}

// CompleteProfile sets username and avatar, flips profile_setup_completed,
// and reads the row back, all on one transaction.
func (db *DB) CompleteProfile(ctx context.Context, userID, username, avatarURL string) (*model.User, error) {
	var updated *model.User

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, db.rebind(`
			UPDATE users
			SET username = ?, avatar_url = ?, profile_setup_completed = ?, updated_at = ?
			WHERE id = ?`),
			username, avatarURL, true, time.Now().UTC(), userID,
		)
		if err != nil {
			return asConflict(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperror.NotFound("user", userID)
		}

		updated, err = scanUser(tx.QueryRowContext(ctx,
			db.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqldb: completing profile for user %s: %w", userID, err)
	}
	return updated, nil
}

// scanUser reads one row in userColumns order. Nullable columns are read
// through sql.NullString and come back as "".
func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u                                        model.User
		passwordHash, googleID, facebookID, name sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&passwordHash,
		&googleID,
		&facebookID,
		&name,
		&u.FirstName,
		&u.LastName,
		&u.AvatarURL,
		&u.ProfileSetupCompleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = passwordHash.String
	u.GoogleID = googleID.String
	u.FacebookID = facebookID.String
	u.Username = name.String
	return &u, nil
}

// nullString stores "" as SQL NULL so optional UNIQUE columns allow many
// unset rows.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func notFoundOr(err error, resource, key, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, key)
	}
	return fmt.Errorf("sqldb: %s: %w", op, err)
}
