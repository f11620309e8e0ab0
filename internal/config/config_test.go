package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	// LoadConfig 使用全局 viper，每个用例从干净状态开始
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	storage := filepath.Join(t.TempDir(), "files")
	dir := writeConfig(t, `
server:
  port: "9090"
  mode: debug
jwt:
  secret: short
  expire_hours: 2
storage:
  type: local
  local_path: `+storage+`
assessment:
  grace_seconds: 8
  report_lang: en
`)
	t.Setenv("SMTP_HOST", "smtp.example.com")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 8, cfg.Assessment.GraceSeconds)
	assert.Equal(t, "en", cfg.Assessment.ReportLang)
	assert.Equal(t, 3, cfg.Assessment.WeakSkillLimit, "unset tunables keep their defaults")
	assert.Equal(t, 10*time.Second, cfg.Assessment.CollaboratorTimeout())
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, dir, cfg.ConfigDir)

	_, err = os.Stat(storage)
	assert.NoError(t, err, "local storage dir is created")
}

func TestReleaseModeRequiresStrongSecret(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: release
jwt:
  secret: too-short
storage:
  type: oss
`)
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "JWT secret is too short")
}
