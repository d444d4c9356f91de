package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionIDPrefix(t *testing.T) {
	sid := NewSessionID()
	assert.True(t, strings.HasPrefix(sid.String(), "sess_"))
	assert.True(t, IsProvisional(sid.String()))
}

func TestRequestIDPrefix(t *testing.T) {
	rid := NewRequestID()
	assert.True(t, strings.HasPrefix(rid.String(), "req_"))
	assert.False(t, IsProvisional(rid.String()))
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		sid := NewSessionID().String()
		assert.False(t, seen[sid], "duplicate id %s", sid)
		seen[sid] = true
	}
}

func TestContainerIDsNotProvisional(t *testing.T) {
	assert.False(t, IsProvisional("3f8a9b2c1d"))
}
