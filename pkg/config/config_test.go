package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	return s
}

func TestInitCreatesDefaults(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, Version, doc[KeyVersion])
	require.Equal(t, "openai", doc[KeyDefaultProvider])
	require.Equal(t, "chat", doc[KeyDefaultMode])

	// Init on an existing file must not clobber it.
	_, err = s.Update(map[string]any{KeyDefaultMode: "shell"})
	require.NoError(t, err)
	require.NoError(t, s.Init())
	require.Equal(t, "shell", s.GetString(KeyDefaultMode, ""))
}

func TestLoadMissingOrCorruptFileYieldsDefaults(t *testing.T) {
	s := newTestStore(t)
	require.Equal(t, "openai", s.GetString(KeyDefaultProvider, ""))

	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))
	require.Equal(t, "openai", s.GetString(KeyDefaultProvider, ""))
	require.Equal(t, 1000, s.GetInt(KeyHistoryLength, 0))
}

func TestUpdateValidation(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Update(map[string]any{
		KeyDefaultProvider: "gemini",
		KeyHistoryLength:   float64(50), // as decoded from JSON
		"favorite_color":   "green",
		KeyDefaultMode:     "screaming",
		KeyShellTimeout:    -1,
	})
	require.NoError(t, err)

	require.Equal(t, "gemini", res.Applied[KeyDefaultProvider])
	require.Equal(t, 50, res.Applied[KeyHistoryLength])
	require.Equal(t, "unknown setting", res.Rejected["favorite_color"])
	require.Contains(t, res.Rejected[KeyDefaultMode], "must be one of")
	require.Contains(t, res.Rejected[KeyShellTimeout], "at least 0")

	// Applied values survive a reload.
	require.Equal(t, "gemini", s.GetString(KeyDefaultProvider, ""))
	require.Equal(t, 50, s.GetInt(KeyHistoryLength, 0))
}

func TestTimeoutSetting(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.Timeout(KeyToolTimeout)
	require.False(t, ok)

	_, err := s.Update(map[string]any{KeyToolTimeout: 45})
	require.NoError(t, err)
	d, ok := s.Timeout(KeyToolTimeout)
	require.True(t, ok)
	require.Equal(t, 45*time.Second, d)

	// Explicit zero means "disabled", which is a valid configuration.
	_, err = s.Update(map[string]any{KeyToolTimeout: 0})
	require.NoError(t, err)
	d, ok = s.Timeout(KeyToolTimeout)
	require.True(t, ok)
	require.Zero(t, d)
}

func TestSetPath(t *testing.T) {
	s := newTestStore(t)

	msg, err := s.SetPath("provider.model", "gpt-new")
	require.NoError(t, err)
	require.Equal(t, "Updated provider.model = gpt-new", msg)
	require.Equal(t, "gpt-new", s.GetString(KeyDefaultModel, ""))

	_, err = s.SetPath("provider.secret", "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown configuration path")

	_, err = s.SetPath(KeyDefaultProvider, "nonsense")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be one of")

	msg, err = s.SetPath(KeyDefaultProvider, "lmstudio")
	require.NoError(t, err)
	require.Contains(t, msg, "Updated default_provider")
}

func TestRenderIncludesPathAndValues(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update(map[string]any{KeyDefaultModel: "gpt-default"})
	require.NoError(t, err)

	out := s.Render()
	require.Contains(t, out, s.Path())
	require.Contains(t, out, "default_model = gpt-default")
}
