package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<!DOCTYPE html>
<html>
<head><title>site</title></head>
<body>
<div id="app-wasm-loader">
<img id="app-wasm-loader-icon" class="webboot-logo">
<p id="app-wasm-loader-label"></p>
</div>
</body>
</html>
`

const googlebot = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "webboot dev")
}

func TestCrawler(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{googlebot, "crawler"},
		{"Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0", "browser"},
	}
	for _, tt := range tests {
		out, err := execute(t, "crawler", tt.ua)
		require.NoError(t, err)
		assert.Contains(t, out, tt.want)
	}

	_, err := execute(t, "crawler")
	assert.Error(t, err)
}

func TestRunMissingModuleFails(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "index.html", testPage)

	out, err := execute(t, "run", "--page", page, "--module", "app.wasm", "--no-workers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module load failed")
	assert.Contains(t, out, "outcome:     failed")
	assert.Contains(t, out, "worker:      unsupported")
}

func TestRunCrawlerJSON(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "index.html", testPage)

	out, err := execute(t, "run", "--page", page, "--user-agent", googlebot, "--no-workers", "--json")
	require.NoError(t, err)

	var report runReport
	require.NoError(t, sonic.Unmarshal([]byte(out), &report))
	assert.Equal(t, "skipped", report.Outcome)
	assert.NotEmpty(t, report.BootID)
	assert.False(t, report.Installed)
}

func TestRunInjectedScriptIsReverted(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "index.html", testPage)
	script := writeFile(t, dir, "ads.js", `
		for (var i = 0; i < 3; i++) {
			document.body.appendChild(document.createElement('iframe'));
		}
	`)

	out, err := execute(t, "run", "--page", page, "--user-agent", googlebot,
		"--no-workers", "--inject", script, "--json")
	require.NoError(t, err)

	var report runReport
	require.NoError(t, sonic.Unmarshal([]byte(out), &report))
	assert.Equal(t, report.Baseline, report.BodyChildren)
	assert.Equal(t, int64(3), report.Reverted)
}

func TestRunStandaloneDisplayMode(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "index.html", testPage)

	out, err := execute(t, "run", "--page", page, "--user-agent", googlebot,
		"--no-workers", "--display-mode", "standalone", "--install", "--json")
	require.NoError(t, err)

	var report runReport
	require.NoError(t, sonic.Unmarshal([]byte(out), &report))
	assert.True(t, report.Installed)
	assert.Empty(t, report.InstallChoice)
}

func TestRunInstallAccepted(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "index.html", testPage)

	out, err := execute(t, "run", "--page", page, "--user-agent", googlebot,
		"--no-workers", "--install")
	require.NoError(t, err)
	assert.Contains(t, out, "install:     accepted")
}

func TestRunRejectsBadDisplayMode(t *testing.T) {
	_, err := execute(t, "run", "--display-mode", "fullscreen", "--no-workers")
	assert.ErrorContains(t, err, "invalid display mode")
}

func TestConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "webboot.ini", "x=1")

	_, err := execute(t, "--config", cfg, "version")
	assert.ErrorContains(t, err, "unsupported config file extension")
}
