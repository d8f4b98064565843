package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	DSN     string        `yaml:"dsn"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("LIFELOG_TEST_DSN", "postgres://db/lifelog")
	path := writeFile(t, "dsn: ${LIFELOG_TEST_DSN}\ntimeout: 5s\n")

	cfg := sample{Port: 8080}
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "postgres://db/lifelog", cfg.DSN)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	cfg := sample{Port: 8080}
	err := Load(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is required")
}

func TestLoad_Errors(t *testing.T) {
	var cfg sample
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))
	assert.Error(t, Load(writeFile(t, "port: [\n"), &cfg))
}

func TestLoadIfExists(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	cfg := sample{Port: 9000}
	require.NoError(t, LoadIfExists(missing, &cfg))
	assert.Equal(t, 9000, cfg.Port)

	var empty sample
	assert.Error(t, LoadIfExists(missing, &empty))
}
