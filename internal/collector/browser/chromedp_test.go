package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromeLauncherDefaults(t *testing.T) {
	t.Parallel()

	l, err := NewChromeLauncher(ChromeConfig{})
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, l.cfg.Mode)
	assert.Equal(t, DefaultUserAgent, l.cfg.UserAgent)
	assert.Equal(t, 1366, l.cfg.WindowWidth)
	assert.Equal(t, 900, l.cfg.WindowHeight)
}

func TestNewChromeLauncherRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	_, err := NewChromeLauncher(ChromeConfig{Mode: "remote"})
	require.ErrorContains(t, err, "unknown browser mode")
}

func TestAllocatorOptionsPerMode(t *testing.T) {
	t.Parallel()

	local, err := NewChromeLauncher(ChromeConfig{Mode: ModeLocal})
	require.NoError(t, err)
	sandboxed, err := NewChromeLauncher(ChromeConfig{Mode: ModeSandboxed})
	require.NoError(t, err)
	withExec, err := NewChromeLauncher(ChromeConfig{Mode: ModeLocal, ExecPath: "/usr/bin/chromium"})
	require.NoError(t, err)

	base := len(local.allocatorOptions())
	assert.Equal(t, base+4, len(sandboxed.allocatorOptions()))
	assert.Equal(t, base+1, len(withExec.allocatorOptions()))
}

func TestJSString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"div[role=\"feed\"]"`, jsString(`div[role="feed"]`))
}
