package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Full(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: graph.db
listen: 0.0.0.0:9000
path: /ws
flush_interval: 1s
tracked: [doc-1, doc-2]
inner_objects: true
log_level: debug
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Database:      "graph.db",
		Listen:        "0.0.0.0:9000",
		Path:          "/ws",
		FlushInterval: time.Second,
		Tracked:       []string{"doc-1", "doc-2"},
		InnerObjects:  true,
		LogLevel:      "debug",
	}, c)
	assert.Equal(t, slog.LevelDebug, c.Level())
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("database: graph.db\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, c.Listen)
	assert.Equal(t, DefaultPath, c.Path)
	assert.Equal(t, DefaultFlushInterval, c.FlushInterval)
	assert.Equal(t, slog.LevelInfo, c.Level())
	assert.Empty(t, c.Tracked)
	assert.False(t, c.InnerObjects)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "database: a.db\ndatabse: b.db\n", "failed to parse YAML"},
		{"missing database", "listen: :9000\n", "invalid config"},
		{"listen without port", "database: a.db\nlisten: localhost\n", "invalid config"},
		{"relative path", "database: a.db\npath: sync\n", "invalid config"},
		{"negative interval", "database: a.db\nflush_interval: -1s\n", "invalid config"},
		{"empty tracked id", "database: a.db\ntracked: [\"\"]\n", "invalid config"},
		{"bad log level", "database: a.db\nlog_level: loud\n", "invalid config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDefault_NeedsDatabase(t *testing.T) {
	c := Default()
	require.Error(t, c.Validate())

	c.Database = "graph.db"
	require.NoError(t, c.Validate())
}

func TestRead_DefersValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: :9000\n"), 0o644))

	c, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Listen)
	assert.Equal(t, DefaultPath, c.Path)
	require.Error(t, c.Validate())

	c.Database = "graph.db"
	require.NoError(t, c.Validate())
}
