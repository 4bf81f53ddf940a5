package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes a single remote calendar subscription.
type FeedConfig struct {
	// URL is the iCalendar endpoint. webcal:// URLs are rewritten to
	// https:// before fetching.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Tag, if set, is written into the frontmatter of notes created from
	// this feed.
	Tag string `yaml:"tag,omitempty" json:"tag,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Delete policies applied to notes whose remote event was cancelled or
// removed.
const (
	DeletePolicyDelete        = "delete"
	DeletePolicyArchive       = "archive"
	DeletePolicyMarkCancelled = "mark-cancelled"
)

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API.
	Listen string `yaml:"listen" json:"listen"`

	// VaultDir is the root of the note vault.
	VaultDir string `yaml:"vault_dir" json:"vault_dir"`

	// NotesFolder is the vault-relative folder where meeting notes are
	// created.
	NotesFolder string `yaml:"notes_folder" json:"notes_folder"`

	// ArchiveFolder is the vault-relative folder notes are moved to under
	// the "archive" delete policy.
	ArchiveFolder string `yaml:"archive_folder" json:"archive_folder"`

	// SyncCron is a cron-style schedule string (e.g. "*/15 * * * *") for
	// periodic sync cycles.
	SyncCron string `yaml:"sync" json:"sync"`

	// WindowPastDays / WindowFutureDays bound the sync window relative to
	// cycle start. Orphan deletion only applies inside this window.
	WindowPastDays   int `yaml:"window_past_days" json:"window_past_days"`
	WindowFutureDays int `yaml:"window_future_days" json:"window_future_days"`

	// Filter is a comma-separated, case-insensitive list of title
	// substrings; matching non-cancelled occurrences are skipped.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`

	// HiddenIDs lists stable ids or series UIDs whose occurrences never
	// produce notes.
	HiddenIDs []string `yaml:"hidden_ids,omitempty" json:"hidden_ids,omitempty"`

	// StartKey / EndKey name the frontmatter fields carrying the mirrored
	// start and end values.
	StartKey string `yaml:"start_key" json:"start_key"`
	EndKey   string `yaml:"end_key" json:"end_key"`

	// UseDuration switches EndKey from an end timestamp to a duration in
	// minutes.
	UseDuration bool `yaml:"use_duration" json:"use_duration"`

	// DeletePolicy is one of "delete", "archive", "mark-cancelled".
	DeletePolicy string `yaml:"delete_policy" json:"delete_policy"`

	// Feeds is the list of subscribed calendars.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           "127.0.0.1:8484",
		VaultDir:         "./vault",
		NotesFolder:      "Meetings",
		ArchiveFolder:    "Meetings/Archive",
		SyncCron:         "*/15 * * * *",
		WindowPastDays:   7,
		WindowFutureDays: 14,
		StartKey:         "scheduled",
		EndKey:           "end",
		UseDuration:      false,
		DeletePolicy:     DeletePolicyDelete,
		Feeds:            []FeedConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8484"
	}
	if c.VaultDir == "" {
		c.VaultDir = "./vault"
	}
	if c.NotesFolder == "" {
		c.NotesFolder = "Meetings"
	}
	if c.ArchiveFolder == "" {
		c.ArchiveFolder = "Meetings/Archive"
	}
	if c.SyncCron == "" {
		c.SyncCron = "*/15 * * * *"
	}
	if c.WindowPastDays <= 0 {
		c.WindowPastDays = 7
	}
	if c.WindowFutureDays <= 0 {
		c.WindowFutureDays = 14
	}
	if c.StartKey == "" {
		c.StartKey = "scheduled"
	}
	if c.EndKey == "" {
		c.EndKey = "end"
	}
	switch c.DeletePolicy {
	case DeletePolicyDelete, DeletePolicyArchive, DeletePolicyMarkCancelled:
		// ok
	default:
		c.DeletePolicy = DeletePolicyDelete
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calnotes-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// FilterTerms splits the configured filter string into trimmed non-empty
// terms.
func (c *Config) FilterTerms() []string {
	if c.Filter == "" {
		return nil
	}
	var terms []string
	for _, part := range strings.Split(c.Filter, ",") {
		if term := strings.TrimSpace(part); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}
