// Copyright 2024-2026 Aiku AI

package configstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists guild documents in a single SQLite database,
// keyed by guild id. The document column holds the same JSON shape the
// FileStore writes, so the two stores are interchangeable.
type SQLiteStore struct {
	db              *sql.DB
	defaultProvider Provider
	log             zerolog.Logger
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, defaultProvider Provider, log zerolog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS guild_configs (
			guild_id TEXT PRIMARY KEY,
			config TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{
		db:              db,
		defaultProvider: defaultProvider,
		log:             log.With().Str("component", "sqlite_store").Logger(),
	}, nil
}

func (s *SQLiteStore) Load(guildID string) (*GuildConfig, error) {
	var doc string
	err := s.db.QueryRow(`SELECT config FROM guild_configs WHERE guild_id = ?`, guildID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return NewGuildConfig(s.defaultProvider), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guild config: %w", err)
	}
	cfg, err := Decode([]byte(doc), s.defaultProvider)
	if err != nil {
		s.log.Warn().Err(err).Str("guild_id", guildID).Msg("Corrupt guild config, using defaults")
		return NewGuildConfig(s.defaultProvider), nil
	}
	return cfg, nil
}

func (s *SQLiteStore) Save(guildID string, cfg *GuildConfig) error {
	data, err := Encode(cfg)
	if err != nil {
		return fmt.Errorf("encode guild config: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO guild_configs (guild_id, config) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET config = excluded.config
	`, guildID, string(data))
	if err != nil {
		return fmt.Errorf("save guild config: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
