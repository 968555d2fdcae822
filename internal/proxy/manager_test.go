package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_GetProxyRotates(t *testing.T) {
	m := NewManager([]string{"http://p1:8000", " ", "http://p2:8000"}, nil)

	assert.Equal(t, "http://p1:8000", m.GetProxy())
	assert.Equal(t, "http://p2:8000", m.GetProxy())
	assert.Equal(t, "http://p1:8000", m.GetProxy())
}

func TestManager_NoProxies(t *testing.T) {
	m := NewManager(nil, []string{"agent/1.0"})

	assert.Equal(t, "", m.GetProxy())
	assert.Equal(t, "agent/1.0", m.GetUserAgent())
}

func TestManager_DefaultAgents(t *testing.T) {
	m := NewManager(nil, nil)
	assert.Contains(t, DefaultUserAgents, m.GetUserAgent())

	var nilManager *Manager
	assert.Equal(t, "", nilManager.GetProxy())
	assert.Equal(t, DefaultUserAgents[0], nilManager.GetUserAgent())
}
