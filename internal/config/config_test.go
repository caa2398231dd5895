package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	content := `
store_path: /tmp/pipeline.db
polling_interval: 15m
scan_lookback: 48h
review_threshold: 0.6

auto_dispatch: true

auto_review:
  enabled: true
  threshold: 0.8

scoring:
  keywords: [go, distributed]
  keyword_weight: 0.4
  seniority_terms: [senior]
  seniority_weight: 0.1
  tier_companies: [acme]
  tier_weight: 0.2
  prefer_remote: true
  remote_weight: 0.2
  salary_floor: 120000
  salary_weight: 0.1

feeds:
  - type: file
    name: curated
    path: jobs.json
    enabled: true
  - type: greenhouse
    name: gh
    board_token: acme
    company: Acme
    enabled: false

mailer:
  type: dir
  dir: /tmp/mailbox
  timeout: 10s
  min_send_delay: 30s

sender:
  name: Test Sender
  email: sender@example.com
  resume_dir: /resumes
  default_variant: general
  variants:
    backend: backend

follow_up:
  min_age: 48h
  max_count: 3

log:
  level: debug
  format: json
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/tmp/pipeline.db", cfg.StorePath)
	assert.Equal(t, 15*time.Minute, cfg.PollingInterval)
	assert.Equal(t, 48*time.Hour, cfg.ScanLookback)
	assert.Equal(t, 0.6, cfg.ReviewThreshold)

	assert.True(t, cfg.AutoDispatch)
	assert.True(t, cfg.AutoReview.Enabled)
	assert.Equal(t, 0.8, cfg.AutoReview.Threshold)

	assert.Equal(t, []string{"go", "distributed"}, cfg.Scoring.Keywords)
	assert.Equal(t, 0.4, cfg.Scoring.KeywordWeight)
	assert.Equal(t, int64(120000), cfg.Scoring.SalaryFloor)
	assert.True(t, cfg.Scoring.PreferRemote)

	require.Len(t, cfg.Feeds, 2)
	assert.Equal(t, "file", cfg.Feeds[0].Type)
	assert.True(t, cfg.Feeds[0].Enabled)
	assert.Equal(t, "acme", cfg.Feeds[1].BoardToken)
	assert.False(t, cfg.Feeds[1].Enabled)

	assert.Equal(t, "dir", cfg.Mailer.Type)
	assert.Equal(t, 10*time.Second, cfg.Mailer.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Mailer.MinSendDelay)

	assert.Equal(t, "sender@example.com", cfg.Sender.Email)
	assert.Equal(t, "general", cfg.Sender.DefaultVariant)

	assert.Equal(t, 48*time.Hour, cfg.FollowUp.MinAge)
	assert.Equal(t, 3, cfg.FollowUp.MaxCount)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "sender:\n  name: X\n  email: x@example.com\n"))
	require.NoError(t, err)

	assert.Equal(t, "applyflow.db", cfg.StorePath)
	assert.Equal(t, 0.5, cfg.ReviewThreshold)
	assert.False(t, cfg.AutoDispatch)
	assert.Equal(t, 0.75, cfg.AutoReview.Threshold)
	assert.Equal(t, 0.3, cfg.Scoring.KeywordWeight)
	assert.Equal(t, 0.1, cfg.Scoring.SeniorityWeight)
	assert.Equal(t, 0.3, cfg.Scoring.TierWeight)
	assert.Equal(t, 0.2, cfg.Scoring.RemoteWeight)
	assert.Equal(t, 0.1, cfg.Scoring.SalaryWeight)
	assert.Equal(t, "log", cfg.Mailer.Type)
	assert.Equal(t, 30*time.Second, cfg.Mailer.Timeout)
	assert.Equal(t, 72*time.Hour, cfg.FollowUp.MinAge)
	assert.Equal(t, 2, cfg.FollowUp.MaxCount)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SENDER_EMAIL", "env@example.com")
	content := "sender:\n  name: X\n  email: ${TEST_SENDER_EMAIL}\n"

	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "env@example.com", cfg.Sender.Email)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "feeds: [unclosed"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "threshold out of range",
			content: "review_threshold: 1.5\n",
			wantErr: "review_threshold",
		},
		{
			name: "weights exceed one",
			content: `
scoring:
  keyword_weight: 0.5
  seniority_weight: 0.5
  tier_weight: 0.5
`,
			wantErr: "weights",
		},
		{
			name:    "bad duration",
			content: "polling_interval: soon\n",
			wantErr: "polling_interval",
		},
		{
			name: "file feed without path",
			content: `
feeds:
  - type: file
    name: broken
    enabled: true
`,
			wantErr: "path",
		},
		{
			name: "greenhouse feed without token",
			content: `
feeds:
  - type: greenhouse
    name: broken
    enabled: true
`,
			wantErr: "board_token",
		},
		{
			name: "unknown mailer type",
			content: `
mailer:
  type: carrier-pigeon
`,
			wantErr: "mailer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
