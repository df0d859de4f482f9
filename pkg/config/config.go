// Package config manages the persistent settings document under ~/.cliagent.
// Settings are a flat JSON object validated against a fixed allow-list with a
// value type per key; unknown keys and ill-typed values are rejected, never
// silently stored.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Version is stamped into freshly created settings documents.
const Version = "0.3.0"

// Settings keys.
const (
	KeyVersion                 = "version"
	KeyDefaultProvider         = "default_provider"
	KeyDefaultModel            = "default_model"
	KeyDefaultMode             = "default_mode"
	KeyHistoryLength           = "history_length"
	KeyCompletionEnabled       = "completion_enabled"
	KeyPreserveInitialLocation = "preserve_initial_location"
	KeyPromptIndicator         = "agent_prompt_indicator"
	KeyShellTimeout            = "shell_timeout"
	KeyToolTimeout             = "tool_timeout"
	KeyMaxIterations           = "max_iterations"
	KeySystemPromptFile        = "system_prompt_file"
	KeySystemPromptText        = "system_prompt_text"
)

// Dir returns the configuration directory, ~/.cliagent on every platform.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".cliagent"), nil
}

// Defaults returns a fresh default settings document.
func Defaults() map[string]any {
	return map[string]any{
		KeyVersion:                 Version,
		KeyDefaultProvider:         "openai",
		KeyDefaultModel:            nil,
		KeyDefaultMode:             "chat",
		KeyHistoryLength:           1000,
		KeyCompletionEnabled:       true,
		KeyPreserveInitialLocation: true,
		KeyPromptIndicator:         "⭐",
	}
}

// validator checks one setting value; the returned error names the
// expectation so the model (or user) can correct the value.
type validator func(value any) error

var allowedKeys = map[string]validator{
	KeyVersion:                 stringValue,
	KeyDefaultProvider:         enumValue("openai", "gemini", "lmstudio"),
	KeyDefaultModel:            nullableString,
	KeyDefaultMode:             enumValue("chat", "shell"),
	KeyHistoryLength:           intMin(1),
	KeyCompletionEnabled:       boolValue,
	KeyPreserveInitialLocation: boolValue,
	KeyPromptIndicator:         stringValue,
	KeyShellTimeout:            intMin(0),
	KeyToolTimeout:             intMin(0),
	KeyMaxIterations:           intMin(1),
	KeySystemPromptFile:        nullableString,
	KeySystemPromptText:        nullableString,
}

// pathAliases map dotted configuration paths accepted by the model-facing
// tools onto settings keys.
var pathAliases = map[string]string{
	"provider.name":  KeyDefaultProvider,
	"provider.model": KeyDefaultModel,
}

// Store is the settings document plus its on-disk location. All reads go
// through Load so external edits are picked up; writes hold the lock for the
// whole read-modify-write.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store at path; an empty path selects the default
// ~/.cliagent/settings.json.
func NewStore(path string) (*Store, error) {
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "settings.json")
	}
	return &Store{path: path}, nil
}

// Path returns the on-disk location of the settings document.
func (s *Store) Path() string { return s.path }

// Init creates the configuration directory and a default settings document
// when none exists yet.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.write(Defaults())
}

// Load reads the settings document. A missing or corrupt file yields the
// defaults so the assistant can always start.
func (s *Store) Load() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() map[string]any {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Defaults()
	}
	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return Defaults()
	}
	return settings
}

func (s *Store) write(settings map[string]any) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Get returns one setting, falling back to the built-in default.
func (s *Store) Get(key string) (any, bool) {
	settings := s.Load()
	if v, ok := settings[key]; ok {
		return v, true
	}
	v, ok := Defaults()[key]
	return v, ok
}

// GetString returns a string setting, or def when unset or not a string.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// GetInt returns an integer setting, or def when unset. JSON numbers arrive
// as float64 and are accepted when integral.
func (s *Store) GetInt(key string, def int) int {
	if v, ok := s.Get(key); ok {
		if n, ok := asInt(v); ok {
			return n
		}
	}
	return def
}

// GetBool returns a boolean setting, or def when unset.
func (s *Store) GetBool(key string, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Timeout returns a persisted timeout setting as a duration. The second
// return is false when the key is not set at all; a stored zero means
// "explicitly disabled" and is returned as (0, true).
func (s *Store) Timeout(key string) (time.Duration, bool) {
	settings := s.Load()
	v, ok := settings[key]
	if !ok {
		return 0, false
	}
	n, ok := asInt(v)
	if !ok || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// UpdateResult reports which updates were applied and which were rejected.
type UpdateResult struct {
	Applied  map[string]any
	Rejected map[string]string
	Current  map[string]any
}

// Update applies a batch of settings changes. Each entry is validated
// independently; invalid entries are rejected with a reason while valid ones
// are still applied, matching read-modify-write semantics for partial
// updates from the model.
func (s *Store) Update(updates map[string]any) (*UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.load()
	res := &UpdateResult{
		Applied:  map[string]any{},
		Rejected: map[string]string{},
	}
	for key, value := range updates {
		validate, ok := allowedKeys[key]
		if !ok {
			res.Rejected[key] = "unknown setting"
			continue
		}
		if err := validate(value); err != nil {
			res.Rejected[key] = err.Error()
			continue
		}
		settings[key] = normalize(value)
		res.Applied[key] = settings[key]
	}
	if len(res.Applied) > 0 {
		if err := s.write(settings); err != nil {
			return nil, err
		}
	}
	res.Current = settings
	return res, nil
}

// SetPath sets one value addressed by a dotted configuration path. Known
// aliases resolve to their settings key; otherwise the path must be a bare
// allow-listed key.
func (s *Store) SetPath(path string, value any) (string, error) {
	key := path
	if alias, ok := pathAliases[path]; ok {
		key = alias
	}
	if strings.Contains(key, ".") {
		return "", fmt.Errorf("unknown configuration path %q", path)
	}
	res, err := s.Update(map[string]any{key: value})
	if err != nil {
		return "", err
	}
	if reason, ok := res.Rejected[key]; ok {
		return "", fmt.Errorf("cannot set %q: %s", path, reason)
	}
	return fmt.Sprintf("Updated %s = %v", path, value), nil
}

// Render formats the settings document for display, keys sorted.
func (s *Store) Render() string {
	settings := s.Load()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Configuration file: %s\n", s.path)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s = %v\n", k, settings[k])
	}
	return b.String()
}

// normalize stores integral JSON numbers as ints so re-marshalled documents
// stay stable.
func normalize(value any) any {
	if n, ok := asInt(value); ok {
		return n
	}
	return value
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func stringValue(v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("expected a string, got %T", v)
	}
	return nil
}

func nullableString(v any) error {
	if v == nil {
		return nil
	}
	return stringValue(v)
}

func boolValue(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("expected a boolean, got %T", v)
	}
	return nil
}

func intMin(min int) validator {
	return func(v any) error {
		n, ok := asInt(v)
		if !ok {
			return fmt.Errorf("expected an integer, got %T", v)
		}
		if n < min {
			return fmt.Errorf("must be at least %d", min)
		}
		return nil
	}
}

func enumValue(allowed ...string) validator {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}
