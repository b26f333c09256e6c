package convconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nunotfc/amelie/internal/config"
)

// DescriptionMode selects the verbosity of generated media descriptions.
type DescriptionMode string

const (
	ModeLong  DescriptionMode = "long"
	ModeShort DescriptionMode = "short"
)

// ParseMode converts a string into a DescriptionMode.
func ParseMode(value string) (DescriptionMode, bool) {
	switch DescriptionMode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeLong:
		return ModeLong, true
	case ModeShort:
		return ModeShort, true
	default:
		return "", false
	}
}

// Settings holds the per-conversation processing preferences. Zero-value
// defaults are long descriptions with all media kinds enabled.
type Settings struct {
	ConversationID string
	Mode           DescriptionMode
	ImageEnabled   bool
	VideoEnabled   bool
	UpdatedAt      time.Time
}

// DefaultSettings returns the settings applied to conversations that have
// never been configured.
func DefaultSettings(conversationID string) Settings {
	return Settings{
		ConversationID: conversationID,
		Mode:           ModeLong,
		ImageEnabled:   true,
		VideoEnabled:   true,
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversation_settings (
    conversation_id TEXT PRIMARY KEY,
    mode TEXT NOT NULL DEFAULT 'long',
    image_enabled INTEGER NOT NULL DEFAULT 1,
    video_enabled INTEGER NOT NULL DEFAULT 1,
    updated_at TEXT NOT NULL
);`

// Store persists per-conversation settings in its own SQLite database so
// settings churn never contends with ledger writes.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the conversation settings database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "conversations.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create settings schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the settings for a conversation, falling back to defaults
// when the conversation was never configured.
func (s *Store) Get(ctx context.Context, conversationID string) (Settings, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT conversation_id, mode, image_enabled, video_enabled, updated_at
         FROM conversation_settings WHERE conversation_id = ?`,
		conversationID,
	)

	var (
		settings   Settings
		mode       string
		imageFlag  int
		videoFlag  int
		updatedRaw string
	)
	err := row.Scan(&settings.ConversationID, &mode, &imageFlag, &videoFlag, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(conversationID), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}

	settings.Mode = DescriptionMode(mode)
	settings.ImageEnabled = imageFlag != 0
	settings.VideoEnabled = videoFlag != 0
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		settings.UpdatedAt = updated
	}
	return settings, nil
}

// Set upserts the settings for a conversation.
func (s *Store) Set(ctx context.Context, settings Settings) error {
	if strings.TrimSpace(settings.ConversationID) == "" {
		return errors.New("conversation id is required")
	}
	if settings.Mode == "" {
		settings.Mode = ModeLong
	}
	if _, ok := ParseMode(string(settings.Mode)); !ok {
		return fmt.Errorf("unknown description mode %q", settings.Mode)
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversation_settings (conversation_id, mode, image_enabled, video_enabled, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(conversation_id) DO UPDATE SET
             mode = excluded.mode,
             image_enabled = excluded.image_enabled,
             video_enabled = excluded.video_enabled,
             updated_at = excluded.updated_at`,
		settings.ConversationID,
		string(settings.Mode),
		boolToInt(settings.ImageEnabled),
		boolToInt(settings.VideoEnabled),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set settings: %w", err)
	}
	return nil
}

// SetMode updates only the description mode for a conversation.
func (s *Store) SetMode(ctx context.Context, conversationID string, mode DescriptionMode) error {
	current, err := s.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	current.Mode = mode
	return s.Set(ctx, current)
}

// SetMediaEnabled toggles processing of a media kind for a conversation.
func (s *Store) SetMediaEnabled(ctx context.Context, conversationID, kind string, enabled bool) error {
	current, err := s.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "image":
		current.ImageEnabled = enabled
	case "video":
		current.VideoEnabled = enabled
	default:
		return fmt.Errorf("unknown media kind %q", kind)
	}
	return s.Set(ctx, current)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
