// Package settings persists user model configurations and resolves the
// effective provider and rate-limit settings for each page request.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/crypto"
	"github.com/jmylchreest/pagemark/internal/models"
)

var (
	ErrNotFound      = errors.New("model config not found")
	ErrInvalidConfig = errors.New("invalid model config")
	ErrUnknownPreset = errors.New("unknown preset")
)

// ConfigInput carries user-entered fields. APIKey is plain text.
type ConfigInput struct {
	Name         string
	BaseURL      string
	ModelID      string
	APIKey       string
	CustomPrompt string
	RateLimit    *models.RateLimitConfig
	Activate     bool
}

// ConfigUpdate holds optional changes; nil fields are left as they are.
type ConfigUpdate struct {
	Name         *string
	BaseURL      *string
	ModelID      *string
	APIKey       *string
	CustomPrompt *string
	RateLimit    *models.RateLimitConfig
	ClearLimit   bool
}

// Store is the SQLite-backed model configuration store.
type Store struct {
	db     *sql.DB
	codec  *crypto.KeyCodec
	logger *slog.Logger
}

// Open creates or opens the store at path. ":memory:" gives a private in-memory database.
func Open(path string, codec *crypto.KeyCodec, logger *slog.Logger) (*Store, error) {
	connStr := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create settings directory: %w", err)
			}
		}
		connStr = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	// SQLite is single-writer; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if codec == nil {
		codec, _ = crypto.NewKeyCodec(nil)
	}
	s := &Store{db: db, codec: codec, logger: logger}

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate settings database: %w", err)
	}

	logger.Debug("settings store opened", "path", path, "encrypted_keys", codec.Encrypted())
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS model_configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		base_url TEXT NOT NULL,
		model_id TEXT NOT NULL,
		api_key TEXT NOT NULL DEFAULT '',
		custom_prompt TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 0,
		rate_limit_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_model_configs_active ON model_configs(is_active);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const selectColumns = `id, name, base_url, model_id, api_key, custom_prompt, is_active, rate_limit_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (models.ModelConfig, error) {
	var (
		cfg                  models.ModelConfig
		active               int
		rateLimitJSON        sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.BaseURL, &cfg.ModelID, &cfg.APIKey, &cfg.CustomPrompt,
		&active, &rateLimitJSON, &createdAt, &updatedAt); err != nil {
		return models.ModelConfig{}, err
	}
	cfg.IsActive = active != 0
	cfg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if rateLimitJSON.Valid && rateLimitJSON.String != "" {
		var rl models.RateLimitConfig
		if err := json.Unmarshal([]byte(rateLimitJSON.String), &rl); err == nil {
			cfg.RateLimit = &rl
		}
	}
	return cfg, nil
}

func encodeRateLimit(rl *models.RateLimitConfig) (sql.NullString, error) {
	if rl == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(rl)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// List returns all configs in creation order. IDs are ULIDs, so they sort by time.
func (s *Store) List(ctx context.Context) ([]models.ModelConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM model_configs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list model configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ModelConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Get returns one config by ID.
func (s *Store) Get(ctx context.Context, id string) (models.ModelConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM model_configs WHERE id = ?`, id)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ModelConfig{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.ModelConfig{}, fmt.Errorf("failed to load model config: %w", err)
	}
	return cfg, nil
}

// Active returns the active config, or nil when none is active.
func (s *Store) Active(ctx context.Context) (*models.ModelConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM model_configs WHERE is_active = 1 ORDER BY id LIMIT 1`)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active model config: %w", err)
	}
	return &cfg, nil
}

// Add stores a new config. The first config ever added becomes active, as does
// any config added with Activate set; activation deactivates all others.
func (s *Store) Add(ctx context.Context, in ConfigInput) (models.ModelConfig, error) {
	if err := validateInput(in.Name, in.BaseURL, in.ModelID); err != nil {
		return models.ModelConfig{}, err
	}
	storedKey, err := s.codec.Encode(strings.TrimSpace(in.APIKey))
	if err != nil {
		return models.ModelConfig{}, fmt.Errorf("failed to encode api key: %w", err)
	}
	rl, err := encodeRateLimit(in.RateLimit)
	if err != nil {
		return models.ModelConfig{}, err
	}

	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ModelConfig{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_configs`).Scan(&count); err != nil {
		return models.ModelConfig{}, fmt.Errorf("failed to count model configs: %w", err)
	}
	activate := in.Activate || count == 0
	if activate {
		if _, err := tx.ExecContext(ctx, `UPDATE model_configs SET is_active = 0`); err != nil {
			return models.ModelConfig{}, fmt.Errorf("failed to deactivate model configs: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO model_configs (id, name, base_url, model_id, api_key, custom_prompt, is_active, rate_limit_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(in.Name), strings.TrimSpace(in.BaseURL), strings.TrimSpace(in.ModelID),
		storedKey, in.CustomPrompt, boolToInt(activate), rl, now, now)
	if err != nil {
		return models.ModelConfig{}, fmt.Errorf("failed to insert model config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.ModelConfig{}, err
	}

	s.logger.Info("model config added", "id", id, "name", in.Name, "active", activate)
	return s.Get(ctx, id)
}

// AddPreset adds a config from a built-in preset with the given API key.
func (s *Store) AddPreset(ctx context.Context, presetKey, apiKey string, activate bool) (models.ModelConfig, error) {
	p, ok := constants.FindPreset(presetKey)
	if !ok {
		return models.ModelConfig{}, fmt.Errorf("%w: %s", ErrUnknownPreset, presetKey)
	}
	return s.Add(ctx, ConfigInput{
		Name:     p.Name,
		BaseURL:  p.BaseURL,
		ModelID:  p.ModelID,
		APIKey:   apiKey,
		Activate: activate,
	})
}

// Update applies the non-nil fields of u. A changed API key is re-encoded.
func (s *Store) Update(ctx context.Context, id string, u ConfigUpdate) (models.ModelConfig, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return models.ModelConfig{}, err
	}

	if u.Name != nil {
		cur.Name = strings.TrimSpace(*u.Name)
	}
	if u.BaseURL != nil {
		cur.BaseURL = strings.TrimSpace(*u.BaseURL)
	}
	if u.ModelID != nil {
		cur.ModelID = strings.TrimSpace(*u.ModelID)
	}
	if u.CustomPrompt != nil {
		cur.CustomPrompt = *u.CustomPrompt
	}
	if u.APIKey != nil {
		stored, err := s.codec.Encode(strings.TrimSpace(*u.APIKey))
		if err != nil {
			return models.ModelConfig{}, fmt.Errorf("failed to encode api key: %w", err)
		}
		cur.APIKey = stored
	}
	switch {
	case u.ClearLimit:
		cur.RateLimit = nil
	case u.RateLimit != nil:
		cur.RateLimit = u.RateLimit
	}

	if err := validateInput(cur.Name, cur.BaseURL, cur.ModelID); err != nil {
		return models.ModelConfig{}, err
	}
	rl, err := encodeRateLimit(cur.RateLimit)
	if err != nil {
		return models.ModelConfig{}, err
	}

	_, err = s.db.ExecContext(ctx, `
	UPDATE model_configs
	SET name = ?, base_url = ?, model_id = ?, api_key = ?, custom_prompt = ?, rate_limit_json = ?, updated_at = ?
	WHERE id = ?`,
		cur.Name, cur.BaseURL, cur.ModelID, cur.APIKey, cur.CustomPrompt, rl,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return models.ModelConfig{}, fmt.Errorf("failed to update model config: %w", err)
	}

	s.logger.Debug("model config updated", "id", id)
	return s.Get(ctx, id)
}

// Activate marks id active and every other config inactive.
func (s *Store) Activate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_configs WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE model_configs SET is_active = CASE WHEN id = ? THEN 1 ELSE 0 END`, id); err != nil {
		return fmt.Errorf("failed to activate model config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("model config activated", "id", id)
	return nil
}

// Delete removes id. If it was active, the first remaining config becomes active.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM model_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var active int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_configs WHERE is_active = 1`).Scan(&active); err != nil {
		return err
	}
	if active == 0 {
		_, err := tx.ExecContext(ctx, `
		UPDATE model_configs SET is_active = 1
		WHERE id = (SELECT id FROM model_configs ORDER BY id LIMIT 1)`)
		if err != nil {
			return fmt.Errorf("failed to promote model config: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("model config deleted", "id", id)
	return nil
}

// DecodeAPIKey returns the plain API key of a stored config.
func (s *Store) DecodeAPIKey(cfg models.ModelConfig) (string, error) {
	return s.codec.Decode(cfg.APIKey)
}

func validateInput(name, baseURL, modelID string) error {
	var missing []string
	if strings.TrimSpace(name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(baseURL) == "" {
		missing = append(missing, "base URL")
	}
	if strings.TrimSpace(modelID) == "" {
		missing = append(missing, "model ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
