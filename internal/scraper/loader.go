package scraper

import (
	"embed"
	"log/slog"
	"os"
)

//go:embed selectors.yaml
var embeddedSelectors embed.FS

// LoadConfig resolves selectors in the following order:
// 1. External file named by SELECTORS_CONFIG_PATH, when set
// 2. Embedded selectors.yaml
// 3. Hardcoded defaults
func LoadConfig() SelectorConfig {
	if configPath := os.Getenv("SELECTORS_CONFIG_PATH"); configPath != "" {
		fileSel, err := LoadSelectors(configPath)
		if err == nil {
			slog.Info("Loaded selectors from external file", "path", configPath)
			return fileSel
		}
		slog.Warn("Failed to load external selectors, trying embedded config", "path", configPath, "error", err)
	}

	data, err := embeddedSelectors.ReadFile("selectors.yaml")
	if err == nil {
		sel, parseErr := LoadSelectorsFromBytes(data)
		if parseErr == nil {
			slog.Info("Loaded selectors from embedded config.")
			return sel
		}
		slog.Warn("Embedded selectors failed to parse. Using defaults.", "error", parseErr)
	}

	slog.Info("Using hardcoded default selectors")
	return DefaultSelectors()
}
