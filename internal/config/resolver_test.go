package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitskyai/producer-agent/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return log
}

func ptr(s string) *string { return &s }

func TestResolve_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("bitskyBaseURL: https://from-file\nglobalID: g-file\n"), 0o644))

	t.Setenv("BITSKY_BASE_URL", "https://from-env")
	t.Setenv("GLOBAL_ID", "")

	r := NewResolver(newTestLogger(t), file, dir)
	snap := r.Resolve()

	assert.Equal(t, "https://from-env", snap.BaseURL, "env must win over file")
	assert.Equal(t, "g-file", snap.GlobalID, "file value survives when env is empty")
}

func TestResolve_OverridesWinOverEverything(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BITSKY_BASE_URL", "https://from-env")

	r := NewResolver(newTestLogger(t), "", dir)
	r.SetOverrides(Overrides{BaseURL: ptr("https://from-override")})
	snap := r.Resolve()

	assert.Equal(t, "https://from-override", snap.BaseURL)
}

func TestResolve_MissingFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(newTestLogger(t), filepath.Join(dir, "does-not-exist.yaml"), dir)
	snap := r.Resolve()
	assert.Empty(t, snap.BaseURL)
}

func TestResolve_SerialIDIsMintedOnceAndPersisted(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(newTestLogger(t), "", dir)

	first := r.Resolve()
	require.NotEmpty(t, first.SerialID)

	r2 := NewResolver(newTestLogger(t), "", dir)
	second := r2.Resolve()
	assert.Equal(t, first.SerialID, second.SerialID, "serial id persists across resolver instances")
}

func TestResolve_OverrideSerialIDSkipsMinting(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(newTestLogger(t), "", dir)
	r.SetOverrides(Overrides{SerialID: ptr("fixed-serial")})

	snap := r.Resolve()
	assert.Equal(t, "fixed-serial", snap.SerialID)

	store := NewPreferencesStore(newTestLogger(t), dir)
	_, ok := store.Load()
	assert.False(t, ok, "an override serial id is never persisted")
}
