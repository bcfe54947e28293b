// Copyright 2024-2026 Aiku AI

package configstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileStore persists one JSON document per guild under a data
// directory, named <guild_id>.json.
type FileStore struct {
	dir             string
	defaultProvider Provider
	log             zerolog.Logger
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, defaultProvider Provider, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return &FileStore{
		dir:             dir,
		defaultProvider: defaultProvider,
		log:             log.With().Str("component", "file_store").Logger(),
	}, nil
}

func (s *FileStore) path(guildID string) string {
	return filepath.Join(s.dir, guildID+".json")
}

func (s *FileStore) Load(guildID string) (*GuildConfig, error) {
	data, err := os.ReadFile(s.path(guildID))
	if errors.Is(err, fs.ErrNotExist) {
		return NewGuildConfig(s.defaultProvider), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read guild config: %w", err)
	}
	cfg, err := Decode(data, s.defaultProvider)
	if err != nil {
		// Corrupt persisted state recovers to defaults rather than
		// taking the guild's relay down.
		s.log.Warn().Err(err).Str("guild_id", guildID).Msg("Corrupt guild config, using defaults")
		return NewGuildConfig(s.defaultProvider), nil
	}
	return cfg, nil
}

func (s *FileStore) Save(guildID string, cfg *GuildConfig) error {
	data, err := Encode(cfg)
	if err != nil {
		return fmt.Errorf("encode guild config: %w", err)
	}
	tmp := s.path(guildID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write guild config: %w", err)
	}
	if err := os.Rename(tmp, s.path(guildID)); err != nil {
		return fmt.Errorf("replace guild config: %w", err)
	}
	return nil
}
