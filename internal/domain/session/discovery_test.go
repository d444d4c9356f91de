package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/logging"
)

func TestExtractVNCPort(t *testing.T) {
	tests := []struct {
		name   string
		output string
		port   int
		ok     bool
	}{
		{
			name:   "marker present",
			output: "some noise\nListening for VNC connections on TCP port 5901\nmore noise",
			port:   5901,
			ok:     true,
		},
		{
			name:   "marker absent",
			output: "starting Xvfb on :99\nchrome launched",
			ok:     false,
		},
		{
			name: "empty output",
			ok:   false,
		},
		{
			name:   "first marker wins",
			output: "Listening for VNC connections on TCP port 5900\nListening for VNC connections on TCP port 6000",
			port:   5900,
			ok:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, ok := ExtractVNCPort(tt.output)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestDiscoverSkipsUnready(t *testing.T) {
	rt := newFakeRuntime()
	rt.add("ready", true, "Listening for VNC connections on TCP port 5902")
	rt.add("booting", true, "starting Xvfb")
	rt.add("dead", false, "Listening for VNC connections on TCP port 5903")

	d := NewDiscoverer(rt, time.Second, logging.NewNop())
	records, err := d.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "ready", records[0].ID)
	assert.Equal(t, 5902, records[0].VNCPort)
	assert.Equal(t, StateRunning, records[0].State)
}

func TestDiscoverQueryFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.listErr = errors.New("daemon unreachable")

	d := NewDiscoverer(rt, time.Second, logging.NewNop())
	records, err := d.Discover(context.Background())
	assert.Error(t, err)
	assert.Nil(t, records)
}
