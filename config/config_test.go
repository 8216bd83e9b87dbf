package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMailConfig() *MailConfig {
	return &MailConfig{
		Protocol:   "imap",
		Host:       "mail.example.com",
		Port:       993,
		UserSource: "static",
		Interval:   10 * time.Minute,
	}
}

func TestMailConfig_CronSpecFromInterval(t *testing.T) {
	cfg := validMailConfig()

	spec, err := cfg.CronSpec()

	require.NoError(t, err)
	assert.Equal(t, "@every 10m0s", spec)
}

func TestMailConfig_CronSpecFromSchedule(t *testing.T) {
	cfg := validMailConfig()
	cfg.Interval = 0
	cfg.Schedule = "0 */10 * * * *"

	spec, err := cfg.CronSpec()

	require.NoError(t, err)
	assert.Equal(t, "0 */10 * * * *", spec)
}

func TestMailConfig_TriggerModesAreExclusive(t *testing.T) {
	cfg := validMailConfig()
	cfg.Schedule = "0 */10 * * * *"

	_, err := cfg.CronSpec()
	assert.Error(t, err)

	cfg.Schedule = ""
	cfg.Interval = 0
	_, err = cfg.CronSpec()
	assert.Error(t, err)
}

func TestMailConfig_Validate(t *testing.T) {
	cfg := validMailConfig()
	require.NoError(t, cfg.Validate())

	cfg.Protocol = "smtp"
	assert.Error(t, cfg.Validate())

	cfg = validMailConfig()
	cfg.UserSource = "oauth"
	assert.Error(t, cfg.Validate())

	cfg = validMailConfig()
	cfg.FolderPattern = "("
	assert.Error(t, cfg.Validate())
}

func TestMailConfig_CompilePattern(t *testing.T) {
	cfg := validMailConfig()

	pattern, err := cfg.CompilePattern()
	require.NoError(t, err)
	assert.Nil(t, pattern)

	cfg.FolderPattern = "^INBOX$"
	pattern, err = cfg.CompilePattern()
	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.True(t, pattern.MatchString("INBOX"))
	assert.False(t, pattern.MatchString("Spam"))
}

func TestMailConfig_IsPop(t *testing.T) {
	cfg := validMailConfig()
	assert.False(t, cfg.IsPop())

	cfg.Protocol = "pop3s"
	assert.True(t, cfg.IsPop())
}
