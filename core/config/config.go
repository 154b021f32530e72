/*Package config parses and validates the crawl configuration.

The configuration names the seed entities a crawl starts from, each with an
optional traversal policy preset. It is validated against an embedded JSON
schema before use, so malformed configurations fail loudly at startup.
*/
package config

import (
	"embed"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/request"
	"github.com/relabs-tech/ghcrawler/core/schema"
)

//go:embed crawlconfig.json
var schemaFS embed.FS

const schemaID = "http://ghcrawler/crawlconfig.json"

// Seed is one crawl entry point
type Seed struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Policy string `json:"policy,omitempty"`
}

// Config is the crawl configuration
type Config struct {
	Seeds []Seed `json:"seeds"`
}

// Parse validates and decodes a crawl configuration
func Parse(data []byte) (*Config, error) {
	validator, err := schema.NewValidatorFromFS(schemaFS)
	if err != nil {
		return nil, fmt.Errorf("crawl configuration: %w", err)
	}
	if err := validator.ValidateString(string(data), schemaID); err != nil {
		return nil, fmt.Errorf("crawl configuration: %w", err)
	}

	config := &Config{}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("crawl configuration: %w", err)
	}

	// the schema accepts any policy name it knows; resolve them here so a
	// drifted enum still fails at parse time
	for _, seed := range config.Seeds {
		if _, err := policy.ByName(seed.Policy); err != nil {
			return nil, fmt.Errorf("crawl configuration: seed %s: %w", seed.URL, err)
		}
	}
	return config, nil
}

// Requests turns the seeds into queueable requests
func (c *Config) Requests() ([]*request.Request, error) {
	requests := make([]*request.Request, 0, len(c.Seeds))
	for _, seed := range c.Seeds {
		p, err := policy.ByName(seed.Policy)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", seed.URL, err)
		}
		requests = append(requests, request.New(seed.Type, seed.URL).WithPolicy(p))
	}
	return requests, nil
}
