package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/internal/domain/repository"
	"github.com/oksasatya/tourauth/pkg/apperror"
)

const uniqueViolation = "23505"

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Secret columns are replaced with constants in the public projection so both
// projections scan into the same row layout.
const (
	selectPublic = `
		SELECT id, email, name, photo, role, '' AS password_hash, state, email_confirmed,
		       NULL::text AS confirm_token_hash, NULL::text AS unlock_token_hash, NULL::text AS reset_token_hash,
		       reset_expires_at, 0 AS login_attempts, password_changed_at, created_at, updated_at
		FROM users`
	selectSecrets = `
		SELECT id, email, name, photo, role, password_hash, state, email_confirmed,
		       confirm_token_hash, unlock_token_hash, reset_token_hash,
		       reset_expires_at, login_attempts, password_changed_at, created_at, updated_at
		FROM users`
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userRow is the column layout of the users table.
type userRow struct {
	ID                string
	Email             string
	Name              string
	Photo             string
	Role              string
	PasswordHash      string
	State             string
	EmailConfirmed    bool
	ConfirmTokenHash  pgtype.Text
	UnlockTokenHash   pgtype.Text
	ResetTokenHash    pgtype.Text
	ResetExpiresAt    pgtype.Timestamptz
	LoginAttempts     int32
	PasswordChangedAt pgtype.Timestamptz
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (row *userRow) dest() []any {
	return []any{
		&row.ID, &row.Email, &row.Name, &row.Photo, &row.Role, &row.PasswordHash, &row.State, &row.EmailConfirmed,
		&row.ConfirmTokenHash, &row.UnlockTokenHash, &row.ResetTokenHash,
		&row.ResetExpiresAt, &row.LoginAttempts, &row.PasswordChangedAt, &row.CreatedAt, &row.UpdatedAt,
	}
}

func text(s string) pgtype.Text { return pgtype.Text{String: s, Valid: s != ""} }

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func toRow(u *entity.User) userRow {
	row := userRow{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		Photo:             u.Photo,
		Role:              string(u.Role),
		PasswordHash:      u.PasswordHash,
		State:             string(u.State.Status()),
		EmailConfirmed:    u.ConfirmedEmail(),
		LoginAttempts:     int32(u.LoginAttempts),
		PasswordChangedAt: timestamptz(u.PasswordChangedAt),
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
	switch s := u.State.(type) {
	case entity.PendingConfirmation:
		row.ConfirmTokenHash = text(s.TokenHash)
	case entity.Locked:
		row.UnlockTokenHash = text(s.UnlockTokenHash)
	case entity.PendingReset:
		row.ResetTokenHash = text(s.TokenHash)
		row.ResetExpiresAt = timestamptz(s.ExpiresAt)
	}
	return row
}

func (row *userRow) toEntity() *entity.User {
	u := &entity.User{
		ID:            row.ID,
		Email:         row.Email,
		Name:          row.Name,
		Photo:         row.Photo,
		Role:          entity.Role(row.Role),
		PasswordHash:  row.PasswordHash,
		LoginAttempts: int(row.LoginAttempts),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.PasswordChangedAt.Valid {
		u.PasswordChangedAt = row.PasswordChangedAt.Time
	}
	switch entity.Status(row.State) {
	case entity.StatusPendingConfirmation:
		u.State = entity.PendingConfirmation{TokenHash: row.ConfirmTokenHash.String}
	case entity.StatusLocked:
		u.State = entity.Locked{UnlockTokenHash: row.UnlockTokenHash.String, EmailConfirmed: row.EmailConfirmed}
	case entity.StatusPendingReset:
		u.State = entity.PendingReset{TokenHash: row.ResetTokenHash.String, ExpiresAt: row.ResetExpiresAt.Time}
	default:
		u.State = entity.Active{}
	}
	return u
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	if err := repository.ValidateForSave(u, repository.SaveOptions{}); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := toRow(u)
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, name, photo, role, password_hash, state, email_confirmed,
		                   confirm_token_hash, login_attempts, password_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, row.ID, row.Email, row.Name, row.Photo, row.Role, row.PasswordHash, row.State, row.EmailConfirmed,
		row.ConfirmTokenHash, row.LoginAttempts, row.PasswordChangedAt,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string, opts ...repository.LoadOption) (*entity.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrUserNotFound()
	}
	return r.findOne(ctx, repository.ApplyLoadOptions(opts...), `WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string, opts ...repository.LoadOption) (*entity.User, error) {
	return r.findOne(ctx, repository.ApplyLoadOptions(opts...), `WHERE email = $1`, entity.NormalizeEmail(email))
}

func (r *UserRepository) FindByTokenHash(ctx context.Context, field repository.TokenField, hash string) (*entity.User, error) {
	if hash == "" {
		return nil, repository.ErrUserNotFound()
	}
	var where string
	switch field {
	case repository.TokenConfirmEmail:
		where = `WHERE confirm_token_hash = $1 AND state = 'pending_confirmation'`
	case repository.TokenPasswordReset:
		where = `WHERE reset_token_hash = $1 AND state = 'pending_reset'`
	case repository.TokenAccountUnlock:
		where = `WHERE unlock_token_hash = $1 AND state = 'locked'`
	default:
		return nil, apperror.Internal(errors.New("unknown token field"))
	}
	return r.findOne(ctx, repository.LoadOptions{Secrets: true}, where, hash)
}

func (r *UserRepository) findOne(ctx context.Context, o repository.LoadOptions, where string, arg any) (*entity.User, error) {
	q := selectPublic
	if o.Secrets {
		q = selectSecrets
	}
	var row userRow
	if err := r.db.QueryRow(ctx, q+"\n\t\t"+where, arg).Scan(row.dest()...); err != nil {
		return nil, classify(err)
	}
	return row.toEntity(), nil
}

func (r *UserRepository) Save(ctx context.Context, u *entity.User, opts repository.SaveOptions) error {
	if err := repository.ValidateForSave(u, opts); err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	row := toRow(u)

	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET email = $1, name = $2, photo = $3, role = $4, password_hash = $5, state = $6, email_confirmed = $7,
		    confirm_token_hash = $8, unlock_token_hash = $9, reset_token_hash = $10, reset_expires_at = $11,
		    login_attempts = $12, password_changed_at = $13, updated_at = $14
		WHERE id = $15
	`, row.Email, row.Name, row.Photo, row.Role, row.PasswordHash, row.State, row.EmailConfirmed,
		row.ConfirmTokenHash, row.UnlockTokenHash, row.ResetTokenHash, row.ResetExpiresAt,
		row.LoginAttempts, row.PasswordChangedAt, row.UpdatedAt, row.ID)
	if err != nil {
		return classify(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrUserNotFound()
	}
	return nil
}

func (r *UserRepository) IncrementLoginAttempts(ctx context.Context, id string) (int, error) {
	var attempts int32
	err := r.db.QueryRow(ctx, `
		UPDATE users
		SET login_attempts = login_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING login_attempts
	`, id).Scan(&attempts)
	if err != nil {
		return 0, classify(err)
	}
	return int(attempts), nil
}

// ResetLoginAttempts reports false both for a locked account and a missing one.
func (r *UserRepository) ResetLoginAttempts(ctx context.Context, id string) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET login_attempts = 0, updated_at = now()
		WHERE id = $1 AND state <> 'locked'
	`, id)
	if err != nil {
		return false, classify(err)
	}
	return res.RowsAffected() == 1, nil
}

// Lock keeps email_confirmed as stored; every unlocked state already carries
// the right value there.
func (r *UserRepository) Lock(ctx context.Context, id string) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET state = 'locked', confirm_token_hash = NULL, unlock_token_hash = NULL,
		    reset_token_hash = NULL, reset_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND state <> 'locked'
	`, id)
	if err != nil {
		return false, classify(err)
	}
	return res.RowsAffected() == 1, nil
}

func (r *UserRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET state = 'active', reset_token_hash = NULL, reset_expires_at = NULL, updated_at = now()
		WHERE state = 'pending_reset' AND reset_expires_at <= $1
	`, now)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected(), nil
}

func classify(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrUserNotFound()
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicateEmail()
	}
	return apperror.Internal(err)
}

var _ repository.UserRepository = (*UserRepository)(nil)
