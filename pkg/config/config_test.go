package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
database:
  type: sqlite
storage:
  type: local
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "./data", cfg.Search.DataDir)
	assert.Equal(t, int64(200000), cfg.Search.PollInterval)
	assert.Equal(t, 200, cfg.Search.HeuristicMoves)
	assert.Equal(t, 200, cfg.Search.MaxRelocation)
}

func TestLoad_CustomValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
search:
  data_dir: "/tmp/data"
  poll_interval: 5000
  max_relocation: 50
database:
  type: postgres
  host: db.example.com
  port: 5432
  database: cpmp
  user: admin
  password: secret
storage:
  type: local
  local_path: /tmp/storage
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/data", cfg.Search.DataDir)
	assert.Equal(t, int64(5000), cfg.Search.PollInterval)
	assert.Equal(t, 50, cfg.Search.MaxRelocation)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "cpmp", cfg.Database.Database)
}

func TestLoad_InvalidDatabaseType(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
database:
  type: oracle
  host: localhost
storage:
  type: local
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	_, err = Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestLoad_COSWithCredentials(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
database:
  type: sqlite
storage:
  type: cos
  bucket: test-bucket
  region: ap-guangzhou
  secret_id: test-id
  secret_key: test-key
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "cos", cfg.Storage.Type)
	assert.Equal(t, "test-bucket", cfg.Storage.Bucket)
}

func TestValidate_EmptyHost(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Type: "postgres",
			Host: "",
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Search: SearchConfig{
			PollInterval:  1,
			MaxRelocation: 1,
		},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database host is required")
}

func TestValidate_SQLiteNeedsNoHost(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Type: "sqlite"},
		Storage:  StorageConfig{Type: "local"},
		Search: SearchConfig{
			PollInterval:  1,
			MaxRelocation: 1,
		},
	}

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidMaxRelocation(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Type: "sqlite"},
		Storage:  StorageConfig{Type: "local"},
		Search: SearchConfig{
			PollInterval:  1,
			MaxRelocation: 0,
		},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max relocation must be at least 1")
}

func TestGetRunDir(t *testing.T) {
	cfg := &Config{
		Search: SearchConfig{DataDir: "/tmp/data"},
	}

	assert.Equal(t, "/tmp/data/run-123", cfg.GetRunDir("run-123"))
}

func TestEnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "search", "data")

	cfg := &Config{
		Search: SearchConfig{DataDir: dataDir},
	}

	err := cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(dataDir)
	assert.NoError(t, err)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadFromReader(t *testing.T) {
	content := []byte(`
database:
  type: mysql
  host: mysql.local
storage:
  type: local
`)
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, "mysql.local", cfg.Database.Host)
}
