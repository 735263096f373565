package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pauljones0/dealboard/internal/models"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	email          TEXT NOT NULL UNIQUE,
	password_hash  TEXT NOT NULL,
	role           TEXT NOT NULL,
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS deals (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	merchant_name TEXT NOT NULL,
	city          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	tags          TEXT[] NOT NULL DEFAULT '{}',
	image_url     TEXT NOT NULL,
	old_price     DOUBLE PRECISION,
	new_price     DOUBLE PRECISION,
	discount_pct  INTEGER,
	expires_at    TIMESTAMPTZ,
	deep_link     TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	submitted_by  TEXT REFERENCES users(id) ON DELETE SET NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS deals_feed_idx ON deals (is_active, discount_pct DESC NULLS LAST, created_at DESC);
CREATE INDEX IF NOT EXISTS deals_city_category_idx ON deals (city, category);
`

var dealColumns = []string{
	"id", "title", "description", "merchant_name", "city", "category", "tags", "image_url",
	"old_price", "new_price", "discount_pct", "expires_at", "deep_link", "is_active",
	"submitted_by", "created_at", "updated_at",
}

var userColumns = []string{"id", "name", "email", "password_hash", "role", "email_verified", "created_at"}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres connects, pings and bootstraps the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func dealValues(d models.Deal) []any {
	return []any{
		d.ID, d.Title, d.Description, d.MerchantName, d.City, d.Category, d.Tags, d.ImageURL,
		d.OldPrice, d.NewPrice, d.DiscountPct, d.ExpiresAt, d.DeepLink, d.IsActive,
		d.SubmittedBy, d.CreatedAt, d.UpdatedAt,
	}
}

func scanDeal(row pgx.Row) (models.Deal, error) {
	var d models.Deal
	err := row.Scan(
		&d.ID, &d.Title, &d.Description, &d.MerchantName, &d.City, &d.Category, &d.Tags, &d.ImageURL,
		&d.OldPrice, &d.NewPrice, &d.DiscountPct, &d.ExpiresAt, &d.DeepLink, &d.IsActive,
		&d.SubmittedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) CreateDeal(ctx context.Context, deal models.Deal) (models.Deal, error) {
	d := prepareNew(deal, s.now())
	query, args, err := psql.Insert("deals").Columns(dealColumns...).Values(dealValues(d)...).ToSql()
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return models.Deal{}, models.ErrDealExists
		}
		return models.Deal{}, fmt.Errorf("failed to insert deal: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) CreateDeals(ctx context.Context, deals []models.Deal) ([]models.Deal, error) {
	if len(deals) == 0 {
		return []models.Deal{}, nil
	}
	now := s.now()
	out := make([]models.Deal, len(deals))
	for i, deal := range deals {
		out[i] = prepareNew(deal, now)
	}
	queries, args, err := batchInserts(out)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", models.ErrTransaction, err)
	}
	defer tx.Rollback(ctx)

	for i, query := range queries {
		if _, err := tx.Exec(ctx, query, args[i]...); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrTransaction, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", models.ErrTransaction, err)
	}
	return out, nil
}

// insertChunkRows bounds rows per INSERT so a statement stays well under
// the 65535 bind parameter limit of the Postgres protocol.
const insertChunkRows = 1000

// batchInserts builds one multi-row INSERT per chunk of deals.
func batchInserts(deals []models.Deal) ([]string, [][]any, error) {
	var queries []string
	var args [][]any
	for start := 0; start < len(deals); start += insertChunkRows {
		end := min(start+insertChunkRows, len(deals))
		insert := psql.Insert("deals").Columns(dealColumns...)
		for _, d := range deals[start:end] {
			insert = insert.Values(dealValues(d)...)
		}
		query, chunkArgs, err := insert.ToSql()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build batch insert: %w", err)
		}
		queries = append(queries, query)
		args = append(args, chunkArgs)
	}
	return queries, args, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, id string) (models.Deal, error) {
	query, args, err := psql.Select(dealColumns...).From("deals").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to build select: %w", err)
	}
	d, err := scanDeal(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Deal{}, models.ErrDealNotFound
	}
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to get deal %s: %w", id, err)
	}
	return d, nil
}

func (s *PostgresStore) UpdateDeal(ctx context.Context, deal models.Deal) (models.Deal, error) {
	if deal.UpdatedAt.IsZero() {
		deal.UpdatedAt = s.now()
	}
	if deal.Tags == nil {
		deal.Tags = []string{}
	}
	query, args, err := psql.Update("deals").SetMap(map[string]any{
		"title":         deal.Title,
		"description":   deal.Description,
		"merchant_name": deal.MerchantName,
		"city":          deal.City,
		"category":      deal.Category,
		"tags":          deal.Tags,
		"image_url":     deal.ImageURL,
		"old_price":     deal.OldPrice,
		"new_price":     deal.NewPrice,
		"discount_pct":  deal.DiscountPct,
		"expires_at":    deal.ExpiresAt,
		"deep_link":     deal.DeepLink,
		"is_active":     deal.IsActive,
		"updated_at":    deal.UpdatedAt,
	}).Where(sq.Eq{"id": deal.ID}).Suffix("RETURNING " + strings.Join(dealColumns, ", ")).ToSql()
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to build update: %w", err)
	}
	d, err := scanDeal(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Deal{}, models.ErrDealNotFound
	}
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to update deal %s: %w", deal.ID, err)
	}
	return d, nil
}

func (s *PostgresStore) DeleteDeal(ctx context.Context, id string) error {
	query, args, err := psql.Delete("deals").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete deal %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDealNotFound
	}
	return nil
}

// listQuery builds the feed/list select for a filter.
func listQuery(filter models.FeedFilter) (string, []any, error) {
	q := psql.Select(dealColumns...).From("deals")
	if filter.ActiveOnly {
		q = q.Where(sq.Eq{"is_active": true})
	}
	if filter.City != "" {
		q = q.Where(sq.Eq{"city": filter.City})
	}
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}
	return q.OrderBy("discount_pct DESC NULLS LAST", "created_at DESC").ToSql()
}

func (s *PostgresStore) ListDeals(ctx context.Context, filter models.FeedFilter) ([]models.Deal, error) {
	query, args, err := listQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()

	deals := []models.Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deals: %w", err)
	}
	return deals, nil
}

func (s *PostgresStore) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	query, args, err := psql.Update("deals").
		Set("is_active", false).
		Set("updated_at", now).
		Where(sq.Eq{"is_active": true}).
		Where(sq.Lt{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build expiry update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired deals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	u := prepareUser(user, s.now())
	query, args, err := psql.Insert("users").Columns(userColumns...).
		Values(u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.EmailVerified, u.CreatedAt).ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("failed to build user insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, models.ErrUserExists
		}
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) findUser(ctx context.Context, where sq.Eq) (models.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("failed to build user select: %w", err)
	}
	var u models.User
	err = s.pool.QueryRow(ctx, query, args...).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findUser(ctx, sq.Eq{"email": normalizeEmail(email)})
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.findUser(ctx, sq.Eq{"id": id})
}

func (s *PostgresStore) MarkEmailVerified(ctx context.Context, id string) error {
	query, args, err := psql.Update("users").Set("email_verified", true).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build verify update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark user %s verified: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}
