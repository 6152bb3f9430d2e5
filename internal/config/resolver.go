// Package config implements the Config Resolver: merging defaults, an
// optional YAML file, the process environment, and caller overrides into
// a single Snapshot, and deriving/persisting a stable per-install serial
// id when the caller doesn't supply one.
package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/bitskyai/producer-agent/internal/platform/envutil"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
)

// Snapshot is the resolved configuration the core operates on. Missing
// BaseURL or GlobalID is a warning, never fatal — the core handles their
// absence downstream (it simply can't make progress until the watcher
// classifies the resulting ConfigMissing error).
type Snapshot struct {
	BaseURL     string `yaml:"bitskyBaseURL" validate:"omitempty,url"`
	SecurityKey string `yaml:"bitskySecurityKey"`
	GlobalID    string `yaml:"globalID" validate:"omitempty,min=1"`
	SerialID    string `yaml:"producerSerialID"`
}

// Overrides are caller-supplied values (Producer.SetConfigs), the
// highest-precedence tier.
type Overrides struct {
	BaseURL     *string
	SecurityKey *string
	GlobalID    *string
	SerialID    *string
}

// Resolver owns the merge precedence and the serial-id persistence
// side effect. It is safe to call Resolve repeatedly; only the first
// call that needs to mint a serial id writes to disk.
type Resolver struct {
	log        *logger.Logger
	prefs      *PreferencesStore
	filePath   string
	overrides  Overrides
	validate   *validator.Validate
	memSerial  string
}

// NewResolver builds a Resolver. configFilePath may be empty, in which
// case the file tier contributes nothing. publicDir is where
// preferences.json is read/written.
func NewResolver(log *logger.Logger, configFilePath, publicDir string) *Resolver {
	return &Resolver{
		log:      log.With("component", "ConfigResolver"),
		prefs:    NewPreferencesStore(log, publicDir),
		filePath: configFilePath,
		validate: validator.New(),
	}
}

// SetOverrides replaces the caller-override tier (Producer.SetConfigs).
func (r *Resolver) SetOverrides(o Overrides) {
	r.overrides = o
}

// Resolve merges defaults < file < environment < overrides, in that
// order, and ensures a serial id is present, deriving and persisting one
// if necessary.
func (r *Resolver) Resolve() Snapshot {
	snap := Snapshot{}

	r.applyFile(&snap)
	r.applyEnv(&snap)
	r.applyOverrides(&snap)

	if snap.SerialID == "" {
		snap.SerialID = r.ensureSerialID()
	}

	if err := r.validate.Struct(snap); err != nil {
		r.log.Warn("resolved config failed validation", "error", err.Error())
	}
	if snap.BaseURL == "" || snap.GlobalID == "" {
		r.log.Warn("missing BITSKY_BASE_URL or GLOBAL_ID; producer cannot operate until resolved",
			"has_base_url", snap.BaseURL != "",
			"has_global_id", snap.GlobalID != "",
		)
	}

	return snap
}

func (r *Resolver) applyFile(snap *Snapshot) {
	if r.filePath == "" {
		return
	}
	raw, err := os.ReadFile(r.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("failed to read config file", "path", r.filePath, "error", err.Error())
		}
		return
	}
	var fromFile Snapshot
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		r.log.Warn("failed to parse config file", "path", r.filePath, "error", err.Error())
		return
	}
	mergeNonEmpty(snap, fromFile)
}

func (r *Resolver) applyEnv(snap *Snapshot) {
	mergeNonEmpty(snap, Snapshot{
		BaseURL:     envutil.String("BITSKY_BASE_URL", ""),
		SecurityKey: envutil.String("BITSKY_SECURITY_KEY", ""),
		GlobalID:    envutil.String("GLOBAL_ID", ""),
		SerialID:    envutil.String("PRODUCER_SERIAL_ID", ""),
	})
}

func (r *Resolver) applyOverrides(snap *Snapshot) {
	if v := r.overrides.BaseURL; v != nil {
		snap.BaseURL = *v
	}
	if v := r.overrides.SecurityKey; v != nil {
		snap.SecurityKey = *v
	}
	if v := r.overrides.GlobalID; v != nil {
		snap.GlobalID = *v
	}
	if v := r.overrides.SerialID; v != nil {
		snap.SerialID = *v
	}
}

// ensureSerialID derives a fresh UUID and attempts to persist it;
// on persistence failure it falls back to the in-process value and logs
// a warning rather than failing.
func (r *Resolver) ensureSerialID() string {
	if r.memSerial != "" {
		return r.memSerial
	}
	if existing, ok := r.prefs.Load(); ok && existing != "" {
		return existing
	}
	fresh := uuid.NewString()
	if err := r.prefs.Save(fresh); err != nil {
		r.log.Warn("failed to persist PRODUCER_SERIAL_ID; using in-memory value for this process",
			"error", err.Error())
		r.memSerial = fresh
	}
	return fresh
}

func mergeNonEmpty(dst *Snapshot, src Snapshot) {
	if strings.TrimSpace(src.BaseURL) != "" {
		dst.BaseURL = src.BaseURL
	}
	if strings.TrimSpace(src.SecurityKey) != "" {
		dst.SecurityKey = src.SecurityKey
	}
	if strings.TrimSpace(src.GlobalID) != "" {
		dst.GlobalID = src.GlobalID
	}
	if strings.TrimSpace(src.SerialID) != "" {
		dst.SerialID = src.SerialID
	}
}
