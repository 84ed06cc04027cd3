package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validBase() *Config {
	c := Default()
	c.Database.Type = "sqlite"
	c.Database.DatabasePath = "/tmp/shortly.db"
	c.Auth.JWTSecret = "secret"
	c.Auth.Pepper = "pepper"
	return c
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	require.NoError(t, validBase().Validate())
}

func TestValidateRejectsMissingDatabasePath(t *testing.T) {
	c := validBase()
	c.Database.DatabasePath = ""
	require.Error(t, c.Validate())
}

func TestValidateRejectsPostgresWithoutURL(t *testing.T) {
	c := validBase()
	c.Database.Type = "postgres"
	c.Database.DatabasePath = ""
	require.Error(t, c.Validate())
}

func TestValidateRejectsShortCodeLength(t *testing.T) {
	c := validBase()
	c.Shortener.Length = 3
	require.Error(t, c.Validate())
}

func TestValidateRejectsMissingSecrets(t *testing.T) {
	c := validBase()
	c.Auth.JWTSecret = ""
	require.Error(t, c.Validate())
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	c := validBase()
	c.Auth.JWTSecret = ""
	c.Auth.Pepper = ""
	err := c.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "jwt_secret")
	require.Contains(t, err.Error(), "pepper")
}

func TestLoadMergesLayersAndAppliesEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte(`
database:
  type: sqlite
  database_path: /tmp/base.db
auth:
  jwt_secret: base-secret
  pepper: base-pepper
`), 0o600))

	t.Setenv("APP_DATABASE__DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load(base)
	require.NoError(t, err)
	require.Equal(t, "/tmp/override.db", cfg.Database.DatabasePath)
	require.Equal(t, "base-secret", cfg.Auth.JWTSecret)
}

func TestLoadIgnoresMissingOptionalLayer(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte(`
database:
  type: sqlite
  database_path: /tmp/base.db
auth:
  jwt_secret: s
  pepper: p
`), 0o600))

	_, err := Load(base, filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
}

func TestDefaultAlphabetHasEnoughDistinctCharacters(t *testing.T) {
	d := Default()
	require.GreaterOrEqual(t, len(dedupAlphabet(d.Shortener.Alphabet)), 2)
}
