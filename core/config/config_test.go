package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/ghcrawler/core/config"
	"github.com/relabs-tech/ghcrawler/core/policy"
)

func TestParse(t *testing.T) {
	data := []byte(`{
		"seeds": [
			{"type": "org", "url": "https://api.github.com/orgs/contoso", "policy": "events"},
			{"type": "user", "url": "https://api.github.com/users/octocat"}
		]
	}`)

	cfg, err := config.Parse(data)
	require.NoError(t, err)
	require.Len(t, cfg.Seeds, 2)
	assert.Equal(t, "org", cfg.Seeds[0].Type)
	assert.Equal(t, "events", cfg.Seeds[0].Policy)
	assert.Equal(t, "", cfg.Seeds[1].Policy)

	requests, err := cfg.Requests()
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, policy.Events(), requests[0].Policy)
	assert.Equal(t, policy.Default(), requests[1].Policy)
}

func TestParseRejectsUnknownPolicy(t *testing.T) {
	data := []byte(`{
		"seeds": [
			{"type": "org", "url": "https://api.github.com/orgs/contoso", "policy": "everything"}
		]
	}`)
	_, err := config.Parse(data)
	assert.Error(t, err)
}

func TestParseRejectsEmptyConfiguration(t *testing.T) {
	for _, data := range []string{
		`{}`,
		`{"seeds": []}`,
		`{"seeds": [{"type": "org"}]}`,
		`not json`,
	} {
		_, err := config.Parse([]byte(data))
		assert.Error(t, err, "configuration %s should be rejected", data)
	}
}
