package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "store.json", `{
		"dialect": "postgres",
		"dsn": "postgres://db.local/regions",
		"table_prefix": "wg_",
		"connect_timeout": "2s",
		"acquirers": 8
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, cfg.GetDialect())
	assert.Equal(t, "wg_", cfg.TablePrefix)
	assert.Equal(t, 2*time.Second, cfg.GetConnectTimeout())
	assert.Equal(t, 8, cfg.GetAcquirers())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "store.json", `{"dsn": "file:regions.db"}`))
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, cfg.GetDialect())
	assert.Equal(t, DefaultConnectTimeout, cfg.GetConnectTimeout())
	assert.Equal(t, DefaultAcquirers, cfg.GetAcquirers())
	assert.Equal(t, "", cfg.TablePrefix)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"extension", "store.yaml", `{"dsn":"x"}`, ".json extension"},
		{"json", "store.json", `{"dsn":`, "parse config JSON"},
		{"dialect", "store.json", `{"dsn":"x","dialect":"oracle"}`, "unsupported dialect"},
		{"dsn", "store.json", `{"dialect":"sqlite"}`, "dsn is required"},
		{"prefix", "store.json", `{"dsn":"x","table_prefix":"wg-;"}`, "table_prefix"},
		{"timeout", "store.json", `{"dsn":"x","connect_timeout":"soon"}`, "connect_timeout"},
		{"negative timeout", "store.json", `{"dsn":"x","connect_timeout":"-1s"}`, "must be positive"},
		{"acquirers", "store.json", `{"dsn":"x","acquirers":-2}`, "acquirers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRejectsLargeFile(t *testing.T) {
	path := writeFile(t, "store.json", `{"dsn":"`+strings.Repeat("x", 1<<20)+`"}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestFromEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "REGIONSTORE_DSN=file:from-dotenv.db\nREGIONSTORE_TABLE_PREFIX=wg_\n")
	t.Setenv("REGIONSTORE_DIALECT", "sqlite")
	t.Setenv("REGIONSTORE_DSN", "file:from-env.db")
	t.Setenv("REGIONSTORE_ACQUIRERS", "2")
	t.Setenv("REGIONSTORE_CONNECT_TIMEOUT", "")
	t.Cleanup(func() { os.Unsetenv("REGIONSTORE_TABLE_PREFIX") })

	cfg, err := FromEnv(envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "file:from-env.db", cfg.DSN, "process environment wins over .env")
	assert.Equal(t, "wg_", cfg.TablePrefix)
	assert.Equal(t, 2, cfg.GetAcquirers())
	assert.Equal(t, DefaultConnectTimeout, cfg.GetConnectTimeout())
}

func TestFromEnvBadAcquirers(t *testing.T) {
	t.Setenv("REGIONSTORE_DSN", "file:x.db")
	t.Setenv("REGIONSTORE_ACQUIRERS", "many")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACQUIRERS")
}

func TestConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  DataSource
		want string
	}{
		{"sqlite untouched", DataSource{DSN: "file:r.db", Username: "u"}, "file:r.db"},
		{"postgres adds user", DataSource{Dialect: "postgres", DSN: "postgres://h/db", Username: "wg", Password: "pw"}, "postgres://wg:pw@h/db"},
		{"postgres keeps user", DataSource{Dialect: "postgres", DSN: "postgres://a@h/db", Username: "wg"}, "postgres://a@h/db"},
		{"postgres keyword dsn", DataSource{Dialect: "postgres", DSN: "host=h dbname=db", Username: "wg"}, "host=h dbname=db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ConnectionString())
		})
	}
}
