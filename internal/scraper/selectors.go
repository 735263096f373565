package scraper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SelectorConfig struct {
	UserAgent string         `yaml:"user_agent"`
	JSONLD    string         `yaml:"json_ld"`
	Meta      MetaSelectors  `yaml:"meta"`
	Crawl     CrawlSelectors `yaml:"crawl"`
}

// MetaSelectors lists fallback selectors per product field, in priority order.
type MetaSelectors struct {
	Title       []string `yaml:"title"`
	Description []string `yaml:"description"`
	Image       []string `yaml:"image"`
	Price       []string `yaml:"price"`
}

type CrawlSelectors struct {
	Links string `yaml:"links"`
	// ProductPaths are path fragments that mark a link as a product page.
	// Empty accepts every same-site link.
	ProductPaths []string `yaml:"product_paths"`
}

// LoadSelectors loads the selector configuration from the specified YAML file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw YAML bytes.
// Sections left empty are filled from DefaultSelectors.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config YAML: %w", err)
	}

	return config.withDefaults(), nil
}

func (s SelectorConfig) withDefaults() SelectorConfig {
	d := DefaultSelectors()
	if s.UserAgent == "" {
		s.UserAgent = d.UserAgent
	}
	if s.JSONLD == "" {
		s.JSONLD = d.JSONLD
	}
	if len(s.Meta.Title) == 0 {
		s.Meta.Title = d.Meta.Title
	}
	if len(s.Meta.Description) == 0 {
		s.Meta.Description = d.Meta.Description
	}
	if len(s.Meta.Image) == 0 {
		s.Meta.Image = d.Meta.Image
	}
	if len(s.Meta.Price) == 0 {
		s.Meta.Price = d.Meta.Price
	}
	if s.Crawl.Links == "" {
		s.Crawl.Links = d.Crawl.Links
	}
	return s
}

// DefaultSelectors returns the fallback configuration if no YAML file is loaded.
// The embedded selectors.yaml should be preferred.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		UserAgent: "Mozilla/5.0 (compatible; DealboardBot/1.0; +https://dealboard.app/bot)",
		JSONLD:    `script[type="application/ld+json"]`,
		Meta: MetaSelectors{
			Title:       []string{`meta[property="og:title"]`, "title"},
			Description: []string{`meta[property="og:description"]`, `meta[name="description"]`},
			Image:       []string{`meta[property="og:image"]`},
			Price: []string{
				`meta[property="product:price:amount"]`,
				`meta[property="og:price:amount"]`,
				`meta[name="price"]`,
			},
		},
		Crawl: CrawlSelectors{
			Links: "a[href]",
		},
	}
}
