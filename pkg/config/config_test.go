package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Contains(t, doc, "general")
	require.Contains(t, doc, "net")
	require.Contains(t, doc, "worlds")

	// a second load reads the file it wrote
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"general": {"motd": "hi", "max-players": 3},
		"net": {"port": 1234, "encryption": false,
			"compression": {"threshold": 64, "level": 1}},
		"worlds": {"main-world": "w"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "hi", cfg.General.MOTD)
	require.Equal(t, 3, cfg.General.MaxPlayers)
	require.Equal(t, 1234, cfg.Net.Port)
	require.False(t, cfg.Net.Encryption)
	require.Equal(t, 64, cfg.Net.Compression.Threshold)
	require.Equal(t, "w", cfg.Worlds.MainWorld)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := Load(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"general":{"max-players":0}}`), 0644))
	_, err = Load(path)
	require.Error(t, err, "structurally invalid config aborts startup")
}
