package config

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 5, cfg.Vote.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Vote.InitialInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.Vote.MaxInterval)
	assert.Equal(t, 16, cfg.MailboxSize)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "3301", cfg.Tarantool.Port)
}

func TestNew_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "poll")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "polls")
	t.Setenv("VOTE_MAX_ATTEMPTS", "3")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 3, cfg.Vote.MaxAttempts)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres://poll:secret@db:5432/polls?sslmode=disable", cfg.Postgres.ConnString())
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := New()
	assert.Error(t, err)
}

func TestPostgres_ConnStringEscapesCredentials(t *testing.T) {
	pg := Postgres{Host: "db", Port: "5432", User: "poll@admin", Password: "p@ss/w:rd?#", DB: "polls"}

	u, err := url.Parse(pg.ConnString())
	require.NoError(t, err)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/polls", u.Path)
	assert.Equal(t, "poll@admin", u.User.Username())
	password, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss/w:rd?#", password)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestTarantool_Addr(t *testing.T) {
	assert.Equal(t, "localhost:3301", Tarantool{Host: "localhost", Port: "3301"}.Addr())
}
