// Package config loads the data-source settings for the region store.
package config

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"

	// DefaultConnectTimeout bounds how long acquiring a connection may take.
	DefaultConnectTimeout = 6 * time.Second
	// DefaultAcquirers is the number of concurrent connection acquisitions.
	DefaultAcquirers = 4

	// EnvPrefix prefixes every environment variable read by FromEnv.
	EnvPrefix = "REGIONSTORE_"
)

// DataSource describes where regions are stored. The zero value of every
// optional field selects its default through the Get* methods, so partial
// files and environments are safe.
type DataSource struct {
	Dialect        string `json:"dialect,omitempty"`
	DSN            string `json:"dsn"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	TablePrefix    string `json:"table_prefix,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"` // duration string like "6s"
	Acquirers      int    `json:"acquirers,omitempty"`
}

// Load reads a DataSource from a JSON file. The file must have a .json
// extension and be under 1MB.
func Load(path string) (*DataSource, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := &DataSource{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	return cfg, nil
}

// FromEnv builds a DataSource from REGIONSTORE_* variables. Any .env files
// given are loaded first; variables already set in the process win.
func FromEnv(envFiles ...string) (*DataSource, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "failed to load %s", f)
		}
	}

	cfg := &DataSource{
		Dialect:        os.Getenv(EnvPrefix + "DIALECT"),
		DSN:            os.Getenv(EnvPrefix + "DSN"),
		Username:       os.Getenv(EnvPrefix + "USERNAME"),
		Password:       os.Getenv(EnvPrefix + "PASSWORD"),
		TablePrefix:    os.Getenv(EnvPrefix + "TABLE_PREFIX"),
		ConnectTimeout: os.Getenv(EnvPrefix + "CONNECT_TIMEOUT"),
	}
	if v := os.Getenv(EnvPrefix + "ACQUIRERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %sACQUIRERS %q", EnvPrefix, v)
		}
		cfg.Acquirers = n
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	return cfg, nil
}

var validPrefix = func(s string) bool {
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// Validate checks that the configuration values are usable.
func (c *DataSource) Validate() error {
	switch c.GetDialect() {
	case DialectSQLite, DialectPostgres:
	default:
		return errors.Errorf("unsupported dialect %q", c.Dialect)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("dsn is required")
	}
	if !validPrefix(c.TablePrefix) {
		return errors.Errorf("table_prefix %q may only contain letters, digits and underscores", c.TablePrefix)
	}
	if c.ConnectTimeout != "" {
		d, err := time.ParseDuration(c.ConnectTimeout)
		if err != nil {
			return errors.Wrapf(err, "invalid connect_timeout %q", c.ConnectTimeout)
		}
		if d <= 0 {
			return errors.Errorf("connect_timeout must be positive, got %s", d)
		}
	}
	if c.Acquirers < 0 {
		return errors.Errorf("acquirers must be non-negative, got %d", c.Acquirers)
	}
	return nil
}

// GetDialect returns the dialect or the default, sqlite.
func (c *DataSource) GetDialect() string {
	if c.Dialect == "" {
		return DialectSQLite
	}
	return strings.ToLower(c.Dialect)
}

// GetConnectTimeout returns the connection acquisition timeout or the default.
func (c *DataSource) GetConnectTimeout() time.Duration {
	if c.ConnectTimeout == "" {
		return DefaultConnectTimeout
	}
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil || d <= 0 {
		return DefaultConnectTimeout
	}
	return d
}

// GetAcquirers returns the acquisition pool size or the default.
func (c *DataSource) GetAcquirers() int {
	if c.Acquirers <= 0 {
		return DefaultAcquirers
	}
	return c.Acquirers
}

// ConnectionString returns the DSN handed to the SQL driver. For postgres,
// Username and Password are folded into URL-style DSNs that lack them.
func (c *DataSource) ConnectionString() string {
	if c.GetDialect() != DialectPostgres || c.Username == "" {
		return c.DSN
	}
	u, err := url.Parse(c.DSN)
	if err != nil || u.Scheme == "" || u.User != nil {
		return c.DSN
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	} else {
		u.User = url.User(c.Username)
	}
	return u.String()
}
