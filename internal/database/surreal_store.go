package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// surrealSchema makes username and email unique and indexes messages by time.
var surrealSchema = []string{
	"DEFINE TABLE IF NOT EXISTS user SCHEMALESS",
	"DEFINE INDEX IF NOT EXISTS user_username ON TABLE user COLUMNS username UNIQUE",
	"DEFINE INDEX IF NOT EXISTS user_email ON TABLE user COLUMNS email UNIQUE",
	"DEFINE INDEX IF NOT EXISTS user_user_id ON TABLE user COLUMNS user_id UNIQUE",
	"DEFINE TABLE IF NOT EXISTS message SCHEMALESS",
	"DEFINE INDEX IF NOT EXISTS message_created_at ON TABLE message COLUMNS created_at",
}

type surrealUser struct {
	ID        *models.RecordID       `json:"id,omitempty"`
	UserID    string                 `json:"user_id"`
	Username  string                 `json:"username"`
	Email     string                 `json:"email"`
	Password  string                 `json:"password"`
	CreatedAt models.CustomDateTime  `json:"created_at"`
	Avatar    *string                `json:"avatar,omitempty"`
	Status    string                 `json:"status"`
	LastSeen  *models.CustomDateTime `json:"last_seen,omitempty"`
}

func (r *surrealUser) toDomain() *domain.User {
	u := &domain.User{
		UserID:    r.UserID,
		Username:  r.Username,
		Email:     r.Email,
		Password:  r.Password,
		CreatedAt: r.CreatedAt.Time,
		Avatar:    r.Avatar,
		Status:    domain.Status(r.Status),
	}
	if r.ID != nil {
		u.ID = r.ID.String()
	}
	if r.LastSeen != nil && !r.LastSeen.IsZero() {
		seen := r.LastSeen.Time
		u.LastSeen = &seen
	}
	return u
}

type surrealMessage struct {
	ID        *models.RecordID      `json:"id,omitempty"`
	Content   string                `json:"content"`
	UserID    string                `json:"user_id"`
	CreatedAt models.CustomDateTime `json:"created_at"`
	Reactions []string              `json:"reactions"`
}

func (r *surrealMessage) toDomain() domain.Message {
	m := domain.Message{
		Content:   r.Content,
		UserID:    r.UserID,
		CreatedAt: r.CreatedAt.Time,
		Reactions: r.Reactions,
	}
	if m.Reactions == nil {
		m.Reactions = []string{}
	}
	if r.ID != nil {
		m.ID = r.ID.String()
	}
	return m
}

// SurrealStore implements domain.Store on SurrealDB.
type SurrealStore struct {
	conn           *Connection
	queryTimeout   time.Duration
	executeTimeout time.Duration
	logger         *slog.Logger
}

var _ domain.Store = (*SurrealStore)(nil)

// NewSurrealStore connects, defines the schema and starts health monitoring.
func NewSurrealStore(ctx context.Context, cfg config.Provider) (*SurrealStore, error) {
	conn := NewConnection(cfg)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	s := &SurrealStore{
		conn:           conn,
		queryTimeout:   cfg.GetDBQueryTimeout(),
		executeTimeout: cfg.GetDBExecuteTimeout(),
		logger:         slog.Default().With("component", "surreal_store"),
	}
	if err := s.migrate(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	conn.StartMonitoring()
	s.logger.InfoContext(ctx, "SurrealDB store ready", "db_url", redactDBURL(cfg.GetDBURL()), "namespace", cfg.GetDBNs(), "database", cfg.GetDBDb())
	return s, nil
}

func (s *SurrealStore) migrate(ctx context.Context) error {
	return s.write(ctx, func(ctx context.Context, db *surrealdb.DB) error {
		for _, stmt := range surrealSchema {
			if err := Execute(ctx, db, stmt, nil); err != nil {
				return NewDBError(err, "define schema").WithQuery(stmt)
			}
		}
		return nil
	})
}

func (s *SurrealStore) read(ctx context.Context, fn func(context.Context, *surrealdb.DB) error) error {
	ctx, cancel := timeoutContext(ctx, s.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()
	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error { return fn(ctx, db) })
}

func (s *SurrealStore) write(ctx context.Context, fn func(context.Context, *surrealdb.DB) error) error {
	ctx, cancel := timeoutContext(ctx, s.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()
	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error { return fn(ctx, db) })
}

// isUserRecordID reports whether id names a record in the user table.
func isUserRecordID(id string) bool {
	return strings.HasPrefix(id, "user:") && len(id) > len("user:")
}

// classifySurreal maps driver failures onto domain sentinels.
func classifySurreal(err error) error {
	switch {
	case err == nil:
		return nil
	case isConnectionError(err):
		return transient(err)
	case strings.Contains(err.Error(), "already contains"), strings.Contains(err.Error(), "already exists"):
		return conflict(err)
	}
	return err
}

func (s *SurrealStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, &domain.ValidationError{Reason: "user is required"}
	}

	record := surrealUser{
		UserID:    user.UserID,
		Username:  user.Username,
		Email:     user.Email,
		Password:  user.Password,
		CreatedAt: models.CustomDateTime{Time: user.CreatedAt},
		Avatar:    user.Avatar,
		Status:    string(user.Status),
	}
	if record.UserID == "" {
		record.UserID = NewUserID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = models.CustomDateTime{Time: time.Now().UTC()}
	}
	if record.Status == "" {
		record.Status = string(domain.StatusOffline)
	}

	const query = "CREATE user CONTENT $data"
	var created *surrealUser
	err := s.write(ctx, func(ctx context.Context, db *surrealdb.DB) error {
		var qErr error
		created, qErr = QueryOne[surrealUser](ctx, db, query, map[string]any{"data": record})
		return qErr
	})
	if err != nil {
		return nil, NewDBError(classifySurreal(err), "create user").WithQuery(query)
	}
	if created == nil {
		return nil, NewDBError(transient(fmt.Errorf("no record returned")), "create user").WithQuery(query)
	}
	return created.toDomain(), nil
}

func (s *SurrealStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !isUserRecordID(id) {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	const query = "SELECT * FROM type::thing($id)"
	params := map[string]any{"id": id}
	found, err := s.queryUser(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	return found, nil
}

func (s *SurrealStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.queryUser(ctx, "SELECT * FROM user WHERE username = $username", map[string]any{"username": username})
}

func (s *SurrealStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.queryUser(ctx, "SELECT * FROM user WHERE email = $email", map[string]any{"email": email})
}

func (s *SurrealStore) queryUser(ctx context.Context, query string, params map[string]any) (*domain.User, error) {
	var found *surrealUser
	err := s.read(ctx, func(ctx context.Context, db *surrealdb.DB) error {
		var qErr error
		found, qErr = QueryOne[surrealUser](ctx, db, query, params)
		return qErr
	})
	if err != nil {
		return nil, NewDBError(classifySurreal(err), "query user").WithQuery(query).WithParams(params)
	}
	if found == nil {
		return nil, nil
	}
	return found.toDomain(), nil
}

func (s *SurrealStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	const query = "SELECT * FROM user ORDER BY created_at ASC"
	var rows []surrealUser
	err := s.read(ctx, func(ctx context.Context, db *surrealdb.DB) error {
		var qErr error
		rows, qErr = Query[surrealUser](ctx, db, query, nil)
		return qErr
	})
	if err != nil {
		return nil, NewDBError(classifySurreal(err), "list users").WithQuery(query)
	}

	users := make([]domain.User, 0, len(rows))
	for i := range rows {
		users = append(users, *rows[i].toDomain())
	}
	return users, nil
}

func (s *SurrealStore) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	if !isUserRecordID(id) {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	if update.Username != nil {
		other, err := s.GetUserByUsername(ctx, *update.Username)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, NewDBError(&domain.ConflictError{Field: "username"}, "username already taken")
		}
	}

	data := map[string]any{}
	if update.Username != nil {
		data["username"] = *update.Username
	}
	if update.Avatar != nil {
		data["avatar"] = *update.Avatar
	}
	if update.Status != nil {
		data["status"] = string(*update.Status)
	}
	if update.ClearLastSeen {
		data["last_seen"] = nil
	} else if update.LastSeen != nil {
		data["last_seen"] = models.CustomDateTime{Time: update.LastSeen.UTC()}
	}
	if len(data) == 0 {
		return s.GetUser(ctx, id)
	}

	const query = "UPDATE type::thing($id) MERGE $data"
	params := map[string]any{"id": id, "data": data}
	var updated *surrealUser
	err := s.write(ctx, func(ctx context.Context, db *surrealdb.DB) error {
		var qErr error
		updated, qErr = QueryOne[surrealUser](ctx, db, query, params)
		return qErr
	})
	if err != nil {
		return nil, NewDBError(classifySurreal(err), "update user").WithQuery(query)
	}
	if updated == nil {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	return updated.toDomain(), nil
}

func (s *SurrealStore) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg == nil {
		return nil, &domain.ValidationError{Field: "message", Reason: "is required"}
	}
	if _, err := s.GetUser(ctx, msg.UserID); err != nil {
		return nil, err
	}

	record := surrealMessage{
		Content:   msg.Content,
		UserID:    msg.UserID,
		CreatedAt: models.CustomDateTime{Time: msg.CreatedAt},
		Reactions: append([]string{}, msg.Reactions...),
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = models.CustomDateTime{Time: time.Now().UTC()}
	}

	const query = "CREATE message CONTENT $data"
	var created *surrealMessage
	err := s.write(ctx, func(ctx context.Context, db *surrealdb.DB) error {
		var qErr error
		created, qErr = QueryOne[surrealMessage](ctx, db, query, map[string]any{"data": record})
		return qErr
	})
	if err != nil {
		return nil, NewDBError(classifySurreal(err), "create message").WithQuery(query)
	}
	if created == nil {
		return nil, NewDBError(transient(fmt.Errorf("no record returned")), "create message").WithQuery(query)
	}
	out := created.toDomain()
	return &out, nil
}

func (s *SurrealStore) ListMessages(ctx context.Context) ([]domain.Message, error) {
	const query = "SELECT * FROM message ORDER BY created_at ASC"
	var rows []surrealMessage
	err := s.read(ctx, func(ctx context.Context, db *surrealdb.DB) error {
		var qErr error
		rows, qErr = Query[surrealMessage](ctx, db, query, nil)
		return qErr
	})
	if err != nil {
		return nil, NewDBError(classifySurreal(err), "list messages").WithQuery(query)
	}

	messages := make([]domain.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].toDomain())
	}
	return messages, nil
}

// Close stops monitoring and closes the connection.
func (s *SurrealStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
