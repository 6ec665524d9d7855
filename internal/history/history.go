// Package history persists conversations and their messages using GORM.
// Both SQLite (pure Go, via glebarez/sqlite) and PostgreSQL backends share
// the same models; GORM's dialects handle the SQL differences. All GORM
// usage is confined to this package — callers see plain domain types.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkaninda/busara/internal/agents"
)

// ErrWrongUser is returned when a conversation exists but belongs to a
// different user.
var ErrWrongUser = errors.New("conversation belongs to a different user")

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Message is one persisted conversation turn. AgentType is set on
// assistant messages produced by a specific workflow agent; empty for
// plain user/assistant turns.
type Message struct {
	Role      string
	Content   string
	AgentType agents.Type
	Model     string
	CreatedAt time.Time
}

// Conversation is a summary row, without messages.
type Conversation struct {
	ID        uuid.UUID
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Config configures the persistence backend.
type Config struct {
	Driver      string // "sqlite" (default) or "postgres".
	SQLitePath  string
	JournalMode string // SQLite journal mode. Default: "wal".

	PostgresDSN     string
	MaxOpenConns    int           // Default: 25
	MaxIdleConns    int           // Default: 5
	ConnMaxLifetime time.Duration // Default: 30m
}

func (c Config) maxOpen() int {
	if c.MaxOpenConns > 0 {
		return c.MaxOpenConns
	}
	return 25
}

func (c Config) maxIdle() int {
	if c.MaxIdleConns > 0 {
		return c.MaxIdleConns
	}
	return 5
}

func (c Config) maxLifetime() time.Duration {
	if c.ConnMaxLifetime > 0 {
		return c.ConnMaxLifetime
	}
	return 30 * time.Minute
}

// Store is the conversation repository.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the configured backend and runs AutoMigrate.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	gormCfg := &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var db *gorm.DB
	var err error
	switch cfg.Driver {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres DSN is required")
		}
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		sqlDB, dbErr := db.DB()
		if dbErr != nil {
			return nil, fmt.Errorf("getting underlying sql.DB: %w", dbErr)
		}
		sqlDB.SetMaxOpenConns(cfg.maxOpen())
		sqlDB.SetMaxIdleConns(cfg.maxIdle())
		sqlDB.SetConnMaxLifetime(cfg.maxLifetime())

	case "", "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		dir := filepath.Dir(cfg.SQLitePath)
		if mkErr := os.MkdirAll(dir, 0750); mkErr != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, mkErr)
		}
		journalMode := cfg.JournalMode
		if journalMode == "" {
			journalMode = "wal"
		}
		dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.SQLitePath, journalMode)
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}

	if err := db.AutoMigrate(&ConversationModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto-migrating: %w", err)
	}

	slogger.Info("history store opened", slog.String("driver", driverName(cfg.Driver)))
	return &Store{db: db, logger: slogger}, nil
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return d
}

// Ping checks the database connection for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetOrCreate returns an existing conversation or creates a new one with
// the given ID. Ownership is verified to prevent cross-user access.
func (s *Store) GetOrCreate(ctx context.Context, userID string, convID uuid.UUID) (uuid.UUID, error) {
	var existing ConversationModel
	err := s.db.WithContext(ctx).Where("id = ?", convID).First(&existing).Error

	if err == nil {
		if existing.UserID != userID {
			return uuid.Nil, ErrWrongUser
		}
		s.db.WithContext(ctx).Model(&existing).Update("updated_at", time.Now().UTC())
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, fmt.Errorf("looking up conversation: %w", err)
	}

	now := time.Now().UTC()
	model := ConversationModel{
		ID:        convID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return uuid.Nil, fmt.Errorf("creating conversation: %w", err)
	}
	return model.ID, nil
}

// Append atomically appends messages to a conversation. Sequence numbers
// continue after the current maximum.
func (s *Store) Append(ctx context.Context, convID uuid.UUID, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		err := tx.Model(&MessageModel{}).
			Where("conversation_id = ?", convID).
			Select("COALESCE(MAX(seq_num), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return fmt.Errorf("getting max seq_num: %w", err)
		}

		models := make([]MessageModel, 0, len(msgs))
		now := time.Now().UTC()
		for i, msg := range msgs {
			created := msg.CreatedAt
			if created.IsZero() {
				created = now
			}
			models = append(models, MessageModel{
				ID:             uuid.New(),
				ConversationID: convID,
				SeqNum:         maxSeq + i + 1,
				Role:           msg.Role,
				Content:        msg.Content,
				AgentType:      string(msg.AgentType),
				Model:          msg.Model,
				CreatedAt:      created,
			})
		}
		if err := tx.Create(&models).Error; err != nil {
			return fmt.Errorf("inserting messages: %w", err)
		}
		return nil
	})
}

// History returns up to limit most recent messages, ordered oldest-first.
// limit <= 0 returns everything.
func (s *Store) History(ctx context.Context, convID uuid.UUID, limit int) ([]Message, error) {
	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("seq_num DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []MessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	// Reverse into ascending order.
	msgs := make([]Message, len(models))
	for i, m := range models {
		msgs[len(models)-1-i] = Message{
			Role:      m.Role,
			Content:   m.Content,
			AgentType: agents.Type(m.AgentType),
			Model:     m.Model,
			CreatedAt: m.CreatedAt,
		}
	}
	return msgs, nil
}

// Get returns a conversation summary by ID.
func (s *Store) Get(ctx context.Context, convID uuid.UUID) (*Conversation, error) {
	var model ConversationModel
	err := s.db.WithContext(ctx).Where("id = ?", convID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	return &Conversation{
		ID:        model.ID,
		UserID:    model.UserID,
		Title:     model.Title,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// List returns a user's conversations, most recently updated first.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []ConversationModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	out := make([]Conversation, len(models))
	for i, m := range models {
		out[i] = Conversation{
			ID:        m.ID,
			UserID:    m.UserID,
			Title:     m.Title,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		}
	}
	return out, nil
}

// SetTitle updates a conversation's display title.
func (s *Store) SetTitle(ctx context.Context, convID uuid.UUID, title string) error {
	return s.db.WithContext(ctx).
		Model(&ConversationModel{}).
		Where("id = ?", convID).
		Update("title", title).Error
}

// DeleteOlderThan removes conversations not updated since cutoff, along
// with their messages. Returns the number of conversations removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []ConversationModel
		if err := tx.Where("updated_at < ?", cutoff).Find(&stale).Error; err != nil {
			return fmt.Errorf("finding stale conversations: %w", err)
		}
		if len(stale) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(stale))
		for i, c := range stale {
			ids[i] = c.ID
		}
		if err := tx.Where("conversation_id IN ?", ids).Delete(&MessageModel{}).Error; err != nil {
			return fmt.Errorf("deleting stale messages: %w", err)
		}
		res := tx.Where("id IN ?", ids).Delete(&ConversationModel{})
		if res.Error != nil {
			return fmt.Errorf("deleting stale conversations: %w", res.Error)
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
