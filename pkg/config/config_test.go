package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Index.VacuumThreshold)
	assert.Equal(t, []float64{2, 1}, cfg.Index.Boosts())
	assert.Equal(t, 1, cfg.Index.Shards)
	assert.Equal(t, "document-events", cfg.Kafka.Topics.DocumentEvents)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
index:
  dataDir: /tmp/ts
  fields:
    - name: content
      boost: 1.5
      required: true
  vacuumThreshold: 3
  snapshotInterval: 5s
search:
  defaultLimit: 20
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ts", cfg.Index.DataDir)
	assert.Equal(t, []FieldConfig{{Name: "content", Boost: 1.5, Required: true}}, cfg.Index.Fields)
	assert.Equal(t, 3, cfg.Index.VacuumThreshold)
	assert.Equal(t, 5*time.Second, cfg.Index.SnapshotInterval)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 1.2, cfg.Index.K1, "unset keys keep defaults")
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "cfg.toml", `
[index]
data_dir = "/var/lib/ts"
vacuum_threshold = 25
shards = 4

[[index.fields]]
name = "title"
boost = 3.0

[[index.fields]]
name = "summary"
boost = 1.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ts", cfg.Index.DataDir)
	assert.Equal(t, 25, cfg.Index.VacuumThreshold)
	assert.Equal(t, 4, cfg.Index.Shards)
	assert.Equal(t, []float64{3, 1}, cfg.Index.Boosts())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TS_INDEX_VACUUM_THRESHOLD", "42")
	t.Setenv("TS_KAFKA_BROKERS", "a:9092,b:9092")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Index.VacuumThreshold)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestIndexConfigValidate(t *testing.T) {
	cfg := DefaultIndexConfig()
	require.NoError(t, cfg.Validate())

	dup := DefaultIndexConfig()
	dup.Fields = append(dup.Fields, FieldConfig{Name: "title"})
	assert.Error(t, dup.Validate())

	none := DefaultIndexConfig()
	none.Fields = nil
	assert.Error(t, none.Validate())

	badB := DefaultIndexConfig()
	badB.B = 2
	assert.Error(t, badB.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
