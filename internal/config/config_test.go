package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/decisions")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DECISION_TTL", "")
	t.Setenv("VOTE_MAX_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 8, cfg.VoteMaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.DecisionTTL)
	assert.Equal(t, 5*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, 50, cfg.ChatBacklogSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("VOTE_MAX_RETRIES", "3")
	t.Setenv("DECISION_TTL", "90m")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, 3, cfg.VoteMaxRetries)
	assert.Equal(t, 90*time.Minute, cfg.DecisionTTL)
	assert.Equal(t, 5*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"postgres ok", Config{StoreDriver: StoreDriverPostgres, DatabaseURL: "postgres://x", VoteMaxRetries: 1}, false},
		{"postgres without url", Config{StoreDriver: StoreDriverPostgres, VoteMaxRetries: 1}, true},
		{"sqlite ok", Config{StoreDriver: StoreDriverSQLite, SQLitePath: "x.db", VoteMaxRetries: 1}, false},
		{"sqlite without path", Config{StoreDriver: StoreDriverSQLite, VoteMaxRetries: 1}, true},
		{"unknown driver", Config{StoreDriver: "mongo", VoteMaxRetries: 1}, true},
		{"no retries", Config{StoreDriver: StoreDriverSQLite, SQLitePath: "x.db"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
