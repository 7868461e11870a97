// Package postgres implements the PostgreSQL persistence layer for the
// referral service.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/idorecall/referral-service/internal/domain/user"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `
	u.id, u.username, u.referral_code, u.points, COALESCE(u.referred_by::text, ''),
	u.profile, u.visitor_ip, u.visitor_user_agent, u.visitor_language,
	u.visitor_referrer_url, u.created_at, u.updated_at
`

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create creates a new user together with their email addresses. The
// unique index on user_emails.address is the authority on duplicates:
// a violation there maps to user.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	profileJSON, err := json.Marshal(profileOrEmpty(u.Profile))
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		insertUser := `
			INSERT INTO users (
				id, username, referral_code, points, referred_by, profile,
				visitor_ip, visitor_user_agent, visitor_language,
				visitor_referrer_url, created_at, updated_at
			) VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, $9, $10, $11, $12)
		`

		_, err := tx.Exec(ctx, insertUser,
			u.ID,
			u.Username,
			u.ReferralCode.String(),
			int(u.Points),
			u.ReferredBy,
			profileJSON,
			u.VisitorInfo.IP,
			u.VisitorInfo.UserAgent,
			u.VisitorInfo.Language,
			u.VisitorInfo.ReferrerURL,
			u.CreatedAt,
			u.UpdatedAt,
		)
		if err != nil {
			return err
		}

		insertEmail := `
			INSERT INTO user_emails (address, user_id, verified, position)
			VALUES ($1, $2, $3, $4)
		`
		for i, e := range u.Emails {
			if _, err := tx.Exec(ctx, insertEmail, e.Address, u.ID, e.Verified, i); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		switch UniqueViolationConstraint(err) {
		case "user_emails_address_key":
			return user.ErrEmailTaken
		case "users_referral_code_key":
			// Lost a generate-and-check race. Extremely rare; surfaced
			// as exhaustion so the caller reports the same failure mode.
			return user.ErrCodeSpaceExhausted
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// SetReferredBy atomically records the referral link. The WHERE clause
// keeps the write first-wins: an already-linked row is left untouched.
func (r *UserRepository) SetReferredBy(ctx context.Context, id, referrerID string) error {
	query := `
		UPDATE users
		SET referred_by = $1, updated_at = $2
		WHERE id = $3 AND referred_by IS NULL
	`

	result, err := r.conn.Exec(ctx, query, referrerID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set referrer: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the user is gone or the link is already set.
		exists, err := r.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return user.ErrUserNotFound
		}
		return user.ErrAlreadyLinked
	}

	return nil
}

// AddPoints atomically increments a user's points.
func (r *UserRepository) AddPoints(ctx context.Context, id string, delta user.Points) error {
	query := `
		UPDATE users
		SET points = points + $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.conn.Exec(ctx, query, int(delta), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}

	if result.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lookups
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a user by internal ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`

	row := r.conn.QueryRow(ctx, query, id)
	return r.scanAndLoadEmails(ctx, row)
}

// GetByEmail returns the user owning the given email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN user_emails e ON e.user_id = u.id
		WHERE e.address = $1
	`

	row := r.conn.QueryRow(ctx, query, email)
	return r.scanAndLoadEmails(ctx, row)
}

// GetByReferralCode returns the user owning the given code.
func (r *UserRepository) GetByReferralCode(ctx context.Context, code user.ReferralCode) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.referral_code = $1`

	row := r.conn.QueryRow(ctx, query, code.String())
	return r.scanAndLoadEmails(ctx, row)
}

// CodeExists reports whether a referral code is already assigned.
func (r *UserRepository) CodeExists(ctx context.Context, code user.ReferralCode) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE referral_code = $1)",
		code.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code existence: %w", err)
	}
	return exists, nil
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Ranking queries
// ─────────────────────────────────────────────────────────────────────────────

// ListBehind returns up to limit users with points strictly below the
// given total, highest first.
func (r *UserRepository) ListBehind(ctx context.Context, points user.Points, limit int) ([]*user.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.points < $1
		ORDER BY u.points DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, int(points), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query users behind: %w", err)
	}
	defer rows.Close()

	return r.scanUsers(ctx, rows)
}

// ListAhead returns up to limit users with points at or above the given
// total, excluding excludeID, lowest first. Ties with the target total
// are included.
func (r *UserRepository) ListAhead(ctx context.Context, points user.Points, excludeID string, limit int) ([]*user.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.points >= $1 AND u.id <> $2
		ORDER BY u.points ASC
		LIMIT $3
	`

	rows, err := r.conn.Query(ctx, query, int(points), excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query users ahead: %w", err)
	}
	defer rows.Close()

	return r.scanUsers(ctx, rows)
}

// Top returns the highest-scoring user. Ties resolve by store order.
func (r *UserRepository) Top(ctx context.Context) (*user.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		ORDER BY u.points DESC
		LIMIT 1
	`

	row := r.conn.QueryRow(ctx, query)
	return r.scanAndLoadEmails(ctx, row)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// exists checks if a user exists by ID.
func (r *UserRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// scanUser scans a single user from a row. Emails are loaded separately.
func (r *UserRepository) scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var code string
	var points int
	var profileJSON []byte

	err := row.Scan(
		&u.ID,
		&u.Username,
		&code,
		&points,
		&u.ReferredBy,
		&profileJSON,
		&u.VisitorInfo.IP,
		&u.VisitorInfo.UserAgent,
		&u.VisitorInfo.Language,
		&u.VisitorInfo.ReferrerURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if IsNoRows(err) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.ReferralCode = user.ReferralCode(code)
	u.Points = user.Points(points)
	if len(profileJSON) > 0 {
		_ = json.Unmarshal(profileJSON, &u.Profile)
	}

	return &u, nil
}

// scanAndLoadEmails scans a user row and attaches their emails.
func (r *UserRepository) scanAndLoadEmails(ctx context.Context, row pgx.Row) (*user.User, error) {
	u, err := r.scanUser(row)
	if err != nil {
		return nil, err
	}

	if err := r.loadEmails(ctx, u); err != nil {
		return nil, err
	}

	return u, nil
}

// scanUsers scans multiple users from rows and attaches their emails.
func (r *UserRepository) scanUsers(ctx context.Context, rows pgx.Rows) ([]*user.User, error) {
	var users []*user.User

	for rows.Next() {
		var u user.User
		var code string
		var points int
		var profileJSON []byte

		err := rows.Scan(
			&u.ID,
			&u.Username,
			&code,
			&points,
			&u.ReferredBy,
			&profileJSON,
			&u.VisitorInfo.IP,
			&u.VisitorInfo.UserAgent,
			&u.VisitorInfo.Language,
			&u.VisitorInfo.ReferrerURL,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		u.ReferralCode = user.ReferralCode(code)
		u.Points = user.Points(points)
		if len(profileJSON) > 0 {
			_ = json.Unmarshal(profileJSON, &u.Profile)
		}

		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	for _, u := range users {
		if err := r.loadEmails(ctx, u); err != nil {
			return nil, err
		}
	}

	return users, nil
}

// loadEmails loads email addresses for a user in stored order.
func (r *UserRepository) loadEmails(ctx context.Context, u *user.User) error {
	query := `
		SELECT address, verified
		FROM user_emails
		WHERE user_id = $1
		ORDER BY position ASC
	`

	rows, err := r.conn.Query(ctx, query, u.ID)
	if err != nil {
		return fmt.Errorf("failed to load emails: %w", err)
	}
	defer rows.Close()

	var emails []user.EmailAddress
	for rows.Next() {
		var e user.EmailAddress
		if err := rows.Scan(&e.Address, &e.Verified); err != nil {
			return fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, e)
	}

	u.Emails = emails
	return rows.Err()
}

// profileOrEmpty keeps profile JSON non-null in storage.
func profileOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
