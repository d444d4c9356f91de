package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/xweng-opaida/agent-viewer/internal/domain/session"
)

// ScriptLauncher starts a session container by running the configured
// launch script with the allocated ports as arguments. The script prints
// a JSON payload describing the container it started.
type ScriptLauncher struct {
	script string
}

// launchPayload is the script's stdout contract.
type launchPayload struct {
	ContainerID string `json:"containerId"`
	WSEndpoint  string `json:"wsEndpoint"`
}

// NewScriptLauncher creates a launcher for the given script path. The
// script must exist at launch time, not construction time, so operators
// can deploy it independently.
func NewScriptLauncher(script string) *ScriptLauncher {
	return &ScriptLauncher{script: script}
}

// Launch runs the script with the debug port, VNC port, and X display as
// positional arguments. A nonzero exit or unparseable payload fails the
// launch; captured output is returned either way for diagnosis.
func (l *ScriptLauncher) Launch(ctx context.Context, debugPort, vncPort int, display string) (*session.LaunchResult, error) {
	if _, err := os.Stat(l.script); err != nil {
		return nil, fmt.Errorf("launch script %s: %w", l.script, err)
	}

	cmd := exec.CommandContext(ctx, "/bin/bash", l.script,
		strconv.Itoa(debugPort),
		strconv.Itoa(vncPort),
		display,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := &session.LaunchResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		return result, fmt.Errorf("run launch script: %w", runErr)
	}

	var payload launchPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout.String())), &payload); err != nil {
		return result, fmt.Errorf("parse launcher output: %w", err)
	}
	if payload.ContainerID == "" {
		return result, fmt.Errorf("launcher did not return a container id")
	}

	result.ContainerID = payload.ContainerID
	result.WSEndpoint = payload.WSEndpoint
	return result, nil
}
