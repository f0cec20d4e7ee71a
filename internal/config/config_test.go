package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func chtmp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

// writeConfigYAML marshals the given tree into config.yaml in dir.
func writeConfigYAML(t *testing.T, dir string, tree map[string]any) {
	t.Helper()
	data, err := yaml.Marshal(tree)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644))
}

func TestLoadDefaults(t *testing.T) {
	chtmp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0", cfg.Sheet.GID)
	assert.Equal(t, DefaultZoom, cfg.Embed.Zoom)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, "sheetmap.db", cfg.Cache.DSN)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 10.0, cfg.Geocode.RequestsPerSec, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtmp(t)

	writeConfigYAML(t, dir, map[string]any{
		"sheet":   map[string]any{"id": "sheet-123", "gid": "7"},
		"geocode": map[string]any{"api_key": "key-abc"},
		"embed":   map[string]any{"container_id": "map", "zoom": 14, "map_id": "styled"},
		"log":     map[string]any{"level": "debug", "format": "console"},
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sheet-123", cfg.Sheet.ID)
	assert.Equal(t, "7", cfg.Sheet.GID)
	assert.Equal(t, "key-abc", cfg.Geocode.APIKey)
	assert.Equal(t, "map", cfg.Embed.ContainerID)
	assert.Equal(t, 14, cfg.Embed.Zoom)
	assert.Equal(t, "styled", cfg.Embed.MapID)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chtmp(t)

	writeConfigYAML(t, dir, map[string]any{
		"sheet": map[string]any{"id": "from-file"},
	})

	t.Setenv("SHEETMAP_SHEET_ID", "from-env")
	t.Setenv("SHEETMAP_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Sheet.ID)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadEnvOnlyNoConfigFile(t *testing.T) {
	chtmp(t)

	t.Setenv("SHEETMAP_SHEET_ID", "env-sheet")
	t.Setenv("SHEETMAP_GEOCODE_API_KEY", "env-key")
	t.Setenv("SHEETMAP_EMBED_CONTAINER_ID", "env-map")
	t.Setenv("SHEETMAP_EMBED_MAP_ID", "env-style")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-sheet", cfg.Sheet.ID)
	assert.Equal(t, "env-key", cfg.Geocode.APIKey)
	assert.Equal(t, "env-map", cfg.Embed.ContainerID)
	assert.Equal(t, "env-style", cfg.Embed.MapID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadZoomOutOfRangeFallsBack(t *testing.T) {
	dir := chtmp(t)

	for _, zoom := range []int{-1, 23, 100} {
		writeConfigYAML(t, dir, map[string]any{
			"embed": map[string]any{"zoom": zoom},
		})

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultZoom, cfg.Embed.Zoom, "zoom=%d", zoom)
	}
}

func TestLoadZoomBoundsAccepted(t *testing.T) {
	dir := chtmp(t)

	for _, zoom := range []int{0, 22} {
		writeConfigYAML(t, dir, map[string]any{
			"embed": map[string]any{"zoom": zoom},
		})

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, zoom, cfg.Embed.Zoom)
	}
}

func validConfig() *Config {
	return &Config{
		Sheet:   SheetConfig{ID: "sheet-123"},
		Geocode: GeocodeConfig{APIKey: "key-abc"},
		Embed:   EmbedConfig{ContainerID: "map", Zoom: DefaultZoom},
	}
}

func TestValidate_AllPresent(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingSheetID(t *testing.T) {
	cfg := validConfig()
	cfg.Sheet.ID = "  "

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet.id is required")
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Geocode.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.api_key is required")
}

func TestValidate_MissingContainerID(t *testing.T) {
	cfg := validConfig()
	cfg.Embed.ContainerID = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed.container_id is required")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
