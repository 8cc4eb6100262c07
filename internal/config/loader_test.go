package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeManifest(t, `
task:
  name: nightly-etl
  run: ["/bin/sh", "-c", "true"]
`)
	file, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nightly-etl", file.Task.Name)
	assert.Equal(t, 2*time.Second, file.Task.GracePeriod.Duration)
	assert.Equal(t, 5*time.Second, file.Task.MonitorInterval.Duration)
	assert.Equal(t, time.Second, file.Task.LeaderTimeout.Duration)
	assert.Equal(t, filepath.Dir(path), file.Task.Workdir)
}

func TestLoadParsesMemoryWarn(t *testing.T) {
	path := writeManifest(t, `
task:
  name: bulk-load
  run: ["/bin/sh", "-c", "true"]
  memoryWarn: 64Mi
  gracePeriod: 500ms
`)
	file, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(64*1024*1024), file.Task.MemoryWarnBytes)
	assert.Equal(t, 500*time.Millisecond, file.Task.GracePeriod.Duration)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeManifest(t, `
task:
  name: typo
  run: ["/bin/true"]
  comand: ["oops"]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresNameAndCommand(t *testing.T) {
	_, err := Load(writeManifest(t, "task:\n  run: [\"/bin/true\"]\n"))
	require.Error(t, err)

	_, err = Load(writeManifest(t, "task:\n  name: empty\n"))
	require.Error(t, err)
}

func TestLoadExpandsEnvValues(t *testing.T) {
	t.Setenv("OVERSEER_TEST_HOME", "/srv/etl")
	path := writeManifest(t, `
task:
  name: expand
  run: ["/bin/true"]
  env:
    DATA_DIR: ${OVERSEER_TEST_HOME}/data
`)
	file, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/etl/data", file.Task.Env["DATA_DIR"])
}

func TestScoped(t *testing.T) {
	file := &File{Task: TaskSpec{
		Name: "scoped",
		Run:  []string{"/bin/true"},
		Env:  map[string]string{"KEY": "value"},
	}}

	bare := file.Scoped(false, false)
	assert.Nil(t, bare.Task.Env)
	assert.Nil(t, bare.Task.Run)
	assert.Equal(t, "scoped", bare.Task.Name)

	full := file.Scoped(true, true)
	assert.Equal(t, file.Task.Env, full.Task.Env)
	assert.Equal(t, file.Task.Run, full.Task.Run)

	// The scoped copy is detached from the original.
	full.Task.Env["KEY"] = "changed"
	assert.Equal(t, "value", file.Task.Env["KEY"])
}
