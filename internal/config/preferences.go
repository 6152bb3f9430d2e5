package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bitskyai/producer-agent/internal/platform/logger"
)

const preferencesFileName = "preferences.json"

// PreferencesStore reads/writes the single preferences.json file under a
// "public" directory. It is written once at init; no concurrent writers
// are assumed.
type PreferencesStore struct {
	log *logger.Logger
	dir string
}

func NewPreferencesStore(log *logger.Logger, dir string) *PreferencesStore {
	if dir == "" {
		dir = "./public"
	}
	return &PreferencesStore{log: log, dir: dir}
}

type preferencesFile struct {
	ProducerSerialID string `json:"PRODUCER_SERIAL_ID"`
}

// Load reads PRODUCER_SERIAL_ID from preferences.json, if present.
func (s *PreferencesStore) Load() (string, bool) {
	raw, err := os.ReadFile(filepath.Join(s.dir, preferencesFileName))
	if err != nil {
		return "", false
	}
	var prefs preferencesFile
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return "", false
	}
	if prefs.ProducerSerialID == "" {
		return "", false
	}
	return prefs.ProducerSerialID, true
}

// Save persists serialID to preferences.json, creating the public
// directory if necessary.
func (s *PreferencesStore) Save(serialID string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(preferencesFile{ProducerSerialID: serialID}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, preferencesFileName), raw, 0o644)
}
