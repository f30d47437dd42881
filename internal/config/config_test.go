// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flowtrack/internal/errors"
	"grimm.is/flowtrack/internal/flowtable"
	"grimm.is/flowtrack/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg.FlowTable)
	assert.Equal(t, flowtable.DefaultBuckets, cfg.FlowTable.Buckets)
	assert.Equal(t, flowtable.DefaultBucketCapacity, cfg.FlowTable.BucketCapacity)
	assert.Equal(t, flowtable.HashReference, cfg.FlowTable.Hash)
	assert.Equal(t, flowtable.DefaultReserve, cfg.FlowTable.Reserve())
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadHCL(t *testing.T) {
	src := `
# small table for tests
flow_table {
  buckets         = 64
  bucket_capacity = 2
  hash            = "murmur"
}

logging {
  level = "debug"
  json  = true
}
`
	cfg, err := LoadHCL([]byte(src), "test.hcl")
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.FlowTable.Buckets)
	assert.Equal(t, 2, cfg.FlowTable.BucketCapacity)
	assert.Equal(t, "murmur", cfg.FlowTable.Hash)
	assert.Equal(t, flowtable.DefaultReserve, cfg.FlowTable.Reserve(), "reserve should default")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadHCL_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `flow_table {`},
		{"unknown attribute", `flow_table { slots = 4 }`},
		{"wrong type", `flow_table { buckets = "many" }`},
		{"negative buckets", `flow_table { buckets = -1 }`},
		{"unknown hash", `flow_table { hash = "crc32" }`},
		{"bad level", `logging { level = "loud" }`},
		{"syslog without host", `logging {
  syslog {
    enabled = true
  }
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHCL([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.Equal(t, errors.KindValidation, errors.GetKind(err))
		})
	}
}

func TestLoadYAML(t *testing.T) {
	src := `
flow_table:
  buckets: 128
  hash: xxhash
  no_block_reserve: 0
logging:
  level: warn
`
	cfg, err := LoadYAML([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.FlowTable.Buckets)
	assert.Equal(t, flowtable.DefaultBucketCapacity, cfg.FlowTable.BucketCapacity)
	assert.Equal(t, "xxhash", cfg.FlowTable.Hash)
	assert.Equal(t, 0, cfg.FlowTable.Reserve(), "explicit zero reserve must survive defaults")
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadYAML_Empty(t *testing.T) {
	cfg, err := LoadYAML(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAML_UnknownField(t *testing.T) {
	_, err := LoadYAML([]byte("flow_table:\n  slots: 4\n"))
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestLoadJSON(t *testing.T) {
	cfg, err := LoadJSON([]byte(`{"flow_table":{"buckets":32,"bucket_capacity":8}}`))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.FlowTable.Buckets)
	assert.Equal(t, 8, cfg.FlowTable.BucketCapacity)

	_, err = LoadJSON([]byte(`{"flow_table":{"slots":4}}`))
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestSaveAndLoadFile(t *testing.T) {
	reserve := 16
	want := &Config{
		FlowTable: &FlowTableConfig{
			Buckets:        256,
			BucketCapacity: 4,
			Hash:           flowtable.HashMurmur,
			NoBlockReserve: &reserve,
		},
		Logging: &LoggingConfig{Level: "debug", JSON: true},
	}

	for _, name := range []string{"flowtrack.hcl", "flowtrack.yaml", "flowtrack.yml", "flowtrack.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "conf", name)
			require.NoError(t, SaveFile(want, path))

			got, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestGenerateHCL(t *testing.T) {
	out := string(GenerateHCL(DefaultConfig()))

	assert.Contains(t, out, "flow_table {")
	assert.Regexp(t, `hash\s+= "reference"`, out)
	assert.Regexp(t, `no_block_reserve\s+= 4096`, out)
	assert.Contains(t, out, `level = "info"`)

	cfg, err := LoadHCL([]byte(out), "generated.hcl")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.hcl"))
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))

	path := filepath.Join(dir, "flowtrack.toml")
	require.NoError(t, os.WriteFile(path, []byte("buckets = 4\n"), 0644))
	_, err = LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	assert.Error(t, SaveFile(DefaultConfig(), filepath.Join(dir, "out.toml")))
}

func TestTableConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlowTable.Buckets = 8
	cfg.FlowTable.Hash = "XXHash"

	tc, err := cfg.FlowTable.TableConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, tc.Buckets)
	assert.Equal(t, flowtable.DefaultBucketCapacity, tc.BucketCapacity)

	key := flowtable.FlowKey{LocalAddr: 0x0A000001, RemoteAddr: 0xC0A80001, LocalPort: 80, RemotePort: 5000}
	assert.Equal(t, flowtable.XXHash(key), tc.Hash(key))

	table, err := flowtable.New(tc, flowtable.WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer table.Close()
	assert.Equal(t, 8, table.Buckets())
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	logger, err := (&LoggingConfig{Level: "debug"}).NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Enabled(logging.LevelDebug))

	logger, err = (&LoggingConfig{Level: "error", JSON: true}).NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Enabled(logging.LevelWarn))

	_, err = (&LoggingConfig{Level: "chatty"}).NewLogger()
	assert.Error(t, err)
}
