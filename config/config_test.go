package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuditorDefaults(t *testing.T) {
	var nilCfg *AuditorConfig
	d := nilCfg.Defaults()
	assert.Equal(t, 50, d.MaxPages)
	assert.Equal(t, 30, d.MaxExternalLinks)
	assert.Equal(t, 50, d.MaxImages)
	assert.Equal(t, 10, d.Concurrency)
	assert.Equal(t, 5*time.Second, d.HeadTimeout)
	assert.Equal(t, 8*time.Second, d.GetTimeout)
	assert.Equal(t, 15*time.Second, d.PageTimeout)
	assert.Equal(t, 100*time.Millisecond, d.CheckDelay)
	assert.NotEmpty(t, d.UserAgent)
}

func TestAuditorDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &AuditorConfig{MaxPages: 5, Concurrency: 3, CheckDelay: 50 * time.Millisecond, UserAgent: "bot"}
	d := cfg.Defaults()
	assert.Equal(t, 5, d.MaxPages)
	assert.Equal(t, 3, d.Concurrency)
	assert.Equal(t, 50*time.Millisecond, d.CheckDelay)
	assert.Equal(t, "bot", d.UserAgent)
	assert.Equal(t, 0, cfg.MaxImages)
}
