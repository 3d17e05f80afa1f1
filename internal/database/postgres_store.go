package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         SERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL UNIQUE,
	username   TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL UNIQUE,
	password   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	avatar     TEXT,
	status     TEXT NOT NULL DEFAULT 'offline',
	last_seen  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS messages (
	id         SERIAL PRIMARY KEY,
	content    TEXT NOT NULL,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	reactions  TEXT[] NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS messages_created_at_idx ON messages (created_at);
`

const userColumns = `id, user_id, username, email, password, created_at, avatar, status, last_seen`

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore implements domain.Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool           *pgxpool.Pool
	queryTimeout   time.Duration
	executeTimeout time.Duration
}

var _ domain.Store = (*PostgresStore)(nil)

// NewPostgresStore opens a pool, verifies it and creates the tables.
func NewPostgresStore(ctx context.Context, cfg config.Provider) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetPostgresURL())
	if err != nil {
		return nil, NewDBError(err, "parse DATABASE_URL")
	}
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, NewDBError(transient(err), "open postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, NewDBError(transient(err), "ping postgres")
	}

	s := &PostgresStore{
		pool:           pool,
		queryTimeout:   cfg.GetDBQueryTimeout(),
		executeTimeout: cfg.GetDBExecuteTimeout(),
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	slog.InfoContext(ctx, "Postgres store ready", "db_url", redactDBURL(cfg.GetPostgresURL()))
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ctx, cancel := timeoutContext(ctx, s.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return NewDBError(classifyPostgres(err), "create schema")
	}
	return nil
}

// classifyPostgres maps pgx failures onto domain sentinels.
func classifyPostgres(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if field := uniqueField(pgErr.ConstraintName); field != "" {
				return fmt.Errorf("%w: %w", &domain.ConflictError{Field: field}, err)
			}
			return conflict(err)
		case pgForeignKeyViolation:
			return errors.Join(domain.ErrNotFound, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) || isConnectionError(err) {
		return transient(err)
	}
	return err
}

// uniqueField maps a default unique constraint name such as
// users_username_key to its column.
func uniqueField(constraint string) string {
	switch constraint {
	case "users_username_key":
		return "username"
	case "users_email_key":
		return "email"
	case "users_user_id_key":
		return "user_id"
	}
	return ""
}

// parseSerial converts an external id into the serial key. Anything that is
// not a positive integer cannot name a row.
func parseSerial(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil && n > 0
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u      domain.User
		id     int64
		status string
	)
	if err := row.Scan(&id, &u.UserID, &u.Username, &u.Email, &u.Password, &u.CreatedAt, &u.Avatar, &status, &u.LastSeen); err != nil {
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	u.Status = domain.Status(status)
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, &domain.ValidationError{Reason: "user is required"}
	}
	ctx, cancel := timeoutContext(ctx, s.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	userID := user.UserID
	if userID == "" {
		userID = NewUserID()
	}
	status := user.Status
	if status == "" {
		status = domain.StatusOffline
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (user_id, username, email, password, created_at, avatar, status, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns
	created, err := scanUser(s.pool.QueryRow(ctx, query,
		userID,
		user.Username,
		user.Email,
		user.Password,
		createdAt,
		user.Avatar,
		string(status),
		user.LastSeen,
	))
	if err != nil {
		return nil, NewDBError(classifyPostgres(err), "create user").WithQuery(query)
	}
	return created, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	serial, ok := parseSerial(id)
	if !ok {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	u, err := s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, serial)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) queryUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	ctx, cancel := timeoutContext(ctx, s.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()

	u, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, NewDBError(classifyPostgres(err), "query user").WithQuery(query)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := timeoutContext(ctx, s.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, NewDBError(classifyPostgres(err), "list users").WithQuery(query)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, NewDBError(err, "scan user")
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDBError(classifyPostgres(err), "list users").WithQuery(query)
	}
	return users, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	serial, ok := parseSerial(id)
	if !ok {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	ctx, cancel := timeoutContext(ctx, s.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	var status *string
	if update.Status != nil {
		v := string(*update.Status)
		status = &v
	}

	query := `
		UPDATE users SET
			username  = COALESCE($2, username),
			avatar    = COALESCE($3, avatar),
			status    = COALESCE($4, status),
			last_seen = CASE WHEN $5::boolean THEN NULL ELSE COALESCE($6, last_seen) END
		WHERE id = $1
		RETURNING ` + userColumns
	u, err := scanUser(s.pool.QueryRow(ctx, query,
		serial,
		update.Username,
		update.Avatar,
		status,
		update.ClearLastSeen,
		update.LastSeen,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewDBError(domain.ErrNotFound, "user "+id)
		}
		return nil, NewDBError(classifyPostgres(err), "update user").WithQuery(query)
	}
	return u, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg == nil {
		return nil, &domain.ValidationError{Field: "message", Reason: "is required"}
	}
	author, ok := parseSerial(msg.UserID)
	if !ok {
		return nil, NewDBError(domain.ErrNotFound, "author "+msg.UserID)
	}
	ctx, cancel := timeoutContext(ctx, s.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	reactions := append([]string{}, msg.Reactions...)

	query := `
		INSERT INTO messages (content, user_id, created_at, reactions)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	var id int64
	out := domain.Message{
		Content:   msg.Content,
		UserID:    msg.UserID,
		Reactions: reactions,
	}
	if err := s.pool.QueryRow(ctx, query, msg.Content, author, createdAt, reactions).Scan(&id, &out.CreatedAt); err != nil {
		return nil, NewDBError(classifyPostgres(err), "create message").WithQuery(query)
	}
	out.ID = strconv.FormatInt(id, 10)
	return &out, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context) ([]domain.Message, error) {
	ctx, cancel := timeoutContext(ctx, s.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()

	query := `SELECT id, content, user_id, created_at, reactions FROM messages ORDER BY created_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, NewDBError(classifyPostgres(err), "list messages").WithQuery(query)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			m      domain.Message
			id     int64
			author int64
		)
		if err := rows.Scan(&id, &m.Content, &author, &m.CreatedAt, &m.Reactions); err != nil {
			return nil, NewDBError(err, "scan message")
		}
		m.ID = strconv.FormatInt(id, 10)
		m.UserID = strconv.FormatInt(author, 10)
		if m.Reactions == nil {
			m.Reactions = []string{}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDBError(classifyPostgres(err), "list messages").WithQuery(query)
	}
	return messages, nil
}

// Close releases the pool.
func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}
