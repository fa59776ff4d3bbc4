package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	_, vr := NormalizeAndValidate(Default())
	assert.True(t, vr.OK(), vr.Errors)
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  port: 9000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, "INBOX", cfg.Mail.Mailbox)
	assert.Equal(t, 5, cfg.Server.ContactRatePerMin)
}

func TestEnsureUserConfig_WritesDefaults(t *testing.T) {
	dir := t.TempDir()

	path, err := EnsureUserConfig(dir, filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().App, cfg.App)
	assert.Equal(t, Default().Mail, cfg.Mail)
	assert.Equal(t, Default().Dashboard, cfg.Dashboard)
}

func TestEnsureUserConfig_CopiesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "default.yml")
	require.NoError(t, os.WriteFile(def, []byte("app:\n  port: 1234\n"), 0o644))

	userDir := filepath.Join(dir, "user")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	path, err := EnsureUserConfig(userDir, def)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.App.Port)
}

func TestOverlayEnv(t *testing.T) {
	t.Setenv("TECKY_PORT", "4000")
	t.Setenv("TECKY_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TECKY_MAIL_ENABLED", "true")

	cfg := Default()
	require.NoError(t, OverlayEnv(&cfg))
	assert.Equal(t, 4000, cfg.App.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.True(t, cfg.Mail.Enabled)
}

func TestOverlayEnv_BadValue(t *testing.T) {
	t.Setenv("TECKY_PORT", "not-a-port")
	cfg := Default()
	assert.Error(t, OverlayEnv(&cfg))
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TECKY_LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("TECKY_LOG_LEVEL", "")
	os.Unsetenv("TECKY_LOG_LEVEL")

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env"), path))
	assert.Equal(t, "debug", os.Getenv("TECKY_LOG_LEVEL"))
}

func TestNormalizeAndValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.CORSAllowedOrigins = []string{" http://x ", "HTTP://X", "", "*"}
	cfg.Dashboard.APIURL = "http://h/api/"
	cfg.Mail.Enabled = true
	cfg.Mail.Username = ""
	cfg.Mail.PollSeconds = 10

	out, vr := NormalizeAndValidate(cfg)
	assert.Equal(t, []string{"http://x", "*"}, out.Server.CORSAllowedOrigins)
	assert.Equal(t, "http://h/api", out.Dashboard.APIURL)
	assert.Contains(t, vr.Errors, "mail.username is required when mail.enabled=true")
	assert.Len(t, vr.Warnings, 2)
	assert.False(t, vr.OK())
}

func TestValidate_BadURLs(t *testing.T) {
	cfg := Default()
	cfg.Dashboard.PushURL = "http://127.0.0.1/ws"
	cfg.App.Port = 0

	_, vr := NormalizeAndValidate(cfg)
	assert.Contains(t, vr.Errors, "app.port must be 1..65535")
	assert.Contains(t, vr.Errors, "dashboard.push_url must use one of ws, wss")
}

func TestSaveAtomic_RejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Server.ContactRatePerMin = 0
	err := SaveAtomic(filepath.Join(t.TempDir(), "c.yml"), cfg)
	assert.ErrorContains(t, err, "contact_rate_per_min")
}

func TestEnsureUserConfig_KeepsCommentsAndExistingFile(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "default.yml")
	seed := "# shipped defaults\napp:\n  port: 1234\n"
	require.NoError(t, os.WriteFile(def, []byte(seed), 0o644))

	path, err := EnsureUserConfig(dir, def)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, seed, string(b))

	require.NoError(t, os.WriteFile(def, []byte("app:\n  port: 9999\n"), 0o644))
	_, err = EnsureUserConfig(dir, def)
	require.NoError(t, err)
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, seed, string(b))
}

func TestEnsureUserConfig_BadDefaultFile(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "default.yml")
	require.NoError(t, os.WriteFile(def, []byte("app: [not, a, map\n"), 0o644))

	_, err := EnsureUserConfig(filepath.Join(dir, "user"), def)
	require.Error(t, err)
}

func TestSaveAtomic_KeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yml")
	first := Default()
	require.NoError(t, SaveAtomic(path, first))

	second := Default()
	second.App.Port = 4000
	require.NoError(t, SaveAtomic(path, second))

	cur, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cur.App.Port)

	bak, err := Load(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, first.App.Port, bak.App.Port)

	left, err := filepath.Glob(path + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, left)
}
