package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
production = false

[server]
name = "smp"
command = "java -Xmx4G -jar server.jar nogui"
workdir = "/srv/minecraft"
env = ["JAVA_OPTS=-XX:+UseG1GC"]
stop_command = "stop"
stop_timeout = "15s"
max_restarts = 2
restart_backoff = "30s"
sample_interval = "1m"

[[server.markers.ready]]
value = 'Done ('

[[server.markers.bridge]]
value = "Started Geyser"

[[server.markers.fatal]]
type = "regex"
value = '(?i)fatal|out of memory'

[http]
listen = ":9090"
base_path = "/api"

[log]
level = "debug"
color = true

[console]
dir = "/var/log/minekeeper"

[history]
enabled = true
type = "sqlite"
dsn = "/var/lib/minekeeper/history.db"

[endpoints]
host = "mc.example.com"
java_port = 25565
bedrock_port = 19132
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "minekeeper.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.False(t, c.Production)
	assert.Equal(t, "smp", c.Server.Name)
	assert.Equal(t, "java -Xmx4G -jar server.jar nogui", c.Server.Command)
	assert.Equal(t, 15*time.Second, c.Server.StopTimeout)
	assert.Equal(t, 30*time.Second, c.Server.RestartBackoff)
	assert.Equal(t, time.Minute, c.Server.SampleInterval)
	assert.Equal(t, 2, c.Server.MaxRestarts)
	require.Len(t, c.Server.Markers.Ready, 1)
	assert.Equal(t, "Done (", c.Server.Markers.Ready[0].Value)
	require.Len(t, c.Server.Markers.Fatal, 1)
	assert.Equal(t, "regex", c.Server.Markers.Fatal[0].Type)
	assert.Equal(t, ":9090", c.HTTP.Listen)
	assert.Equal(t, 5*time.Second, c.HTTP.ShutdownCeiling, "default applies when unset")
	assert.True(t, c.History.Enabled)
	assert.Equal(t, "sqlite", c.History.Type)
	assert.Equal(t, "mc.example.com", c.Endpoints.Host)
	assert.Equal(t, 25565, c.Endpoints.JavaPort)
	assert.Equal(t, 19132, c.Endpoints.BedrockPort)
}

func TestSupervisorSpecMapping(t *testing.T) {
	c, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	spec := c.SupervisorSpec()
	assert.Equal(t, "smp", spec.Name)
	assert.Equal(t, c.Server.Command, spec.Command)
	assert.Equal(t, "/srv/minecraft", spec.WorkDir)
	assert.Equal(t, []string{"JAVA_OPTS=-XX:+UseG1GC"}, spec.Env)
	assert.Equal(t, c.Server.Markers, spec.Markers)
	assert.Equal(t, "/var/log/minekeeper", spec.Console.Dir)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvMode, "production")
	t.Setenv(EnvHTTPAddr, ":7070")

	c, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	assert.True(t, c.Production)
	assert.Equal(t, ":7070", c.HTTP.Listen)
}

func TestLoadRejectsMissingCommand(t *testing.T) {
	_, err := Load(writeConfig(t, `
[server]
name = "smp"
[[server.markers.ready]]
value = "Done ("
`))
	assert.Error(t, err)
}

func TestLoadRejectsMissingReadyMarker(t *testing.T) {
	_, err := Load(writeConfig(t, `
[server]
command = "java -jar server.jar"
`))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
