package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launch.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755))
	return path
}

func TestLaunchParsesPayload(t *testing.T) {
	script := writeScript(t, `echo '{"containerId":"abc123","wsEndpoint":"ws://127.0.0.1:9222/devtools"}'`)
	l := NewScriptLauncher(script)

	res, err := l.Launch(context.Background(), 9222, 5900, ":99")
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.ContainerID)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools", res.WSEndpoint)
}

func TestLaunchPassesPortArguments(t *testing.T) {
	script := writeScript(t, `echo "{\"containerId\":\"$1-$2-$3\"}"`)
	l := NewScriptLauncher(script)

	res, err := l.Launch(context.Background(), 9223, 5901, ":100")
	require.NoError(t, err)
	assert.Equal(t, "9223-5901-:100", res.ContainerID)
}

func TestLaunchNonzeroExitPreservesOutput(t *testing.T) {
	script := writeScript(t, "echo partial; echo failure details >&2; exit 3")
	l := NewScriptLauncher(script)

	res, err := l.Launch(context.Background(), 9222, 5900, ":99")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Contains(t, res.Stdout, "partial")
	assert.Contains(t, res.Stderr, "failure details")
}

func TestLaunchBadJSON(t *testing.T) {
	script := writeScript(t, "echo not-json")
	l := NewScriptLauncher(script)

	res, err := l.Launch(context.Background(), 9222, 5900, ":99")
	require.Error(t, err)
	assert.Contains(t, res.Stdout, "not-json")
}

func TestLaunchMissingContainerID(t *testing.T) {
	script := writeScript(t, `echo '{"wsEndpoint":"ws://x"}'`)
	l := NewScriptLauncher(script)

	_, err := l.Launch(context.Background(), 9222, 5900, ":99")
	assert.ErrorContains(t, err, "container id")
}

func TestLaunchMissingScript(t *testing.T) {
	l := NewScriptLauncher(filepath.Join(t.TempDir(), "absent.sh"))

	_, err := l.Launch(context.Background(), 9222, 5900, ":99")
	assert.Error(t, err)
}
