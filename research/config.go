package research

import (
	"fmt"
	"time"
)

// Models 按角色指定模型。
type Models struct {
	Scoping         string
	Research        string
	Compression     string
	Supervisor      string
	Writer          string
	WriterMaxTokens int
}

// Config 是编排核心的参数。
type Config struct {
	MaxResearchIterations      int
	MaxConcurrentResearchUnits int
	MaxBriefLength             int
	Models                     Models
	// Clock 用于提示词中的日期，默认 time.Now。
	Clock func() time.Time
}

// DefaultConfig returns the stock limits and model selection.
func DefaultConfig() Config {
	return Config{
		MaxResearchIterations:      5,
		MaxConcurrentResearchUnits: 2,
		MaxBriefLength:             5000,
		Models: Models{
			Scoping:         "openai/gpt-4o",
			Research:        "openai/o4-mini",
			Compression:     "openai/gpt-4.1-mini",
			Supervisor:      "openai/gpt-4.1",
			Writer:          "openai/gpt-4.1",
			WriterMaxTokens: 32000,
		},
	}
}

// Validate 校验上限与模型配置。
func (c Config) Validate() error {
	if c.MaxResearchIterations <= 0 {
		return fmt.Errorf("max research iterations must be positive, got %d", c.MaxResearchIterations)
	}
	if c.MaxConcurrentResearchUnits <= 0 {
		return fmt.Errorf("max concurrent research units must be positive, got %d", c.MaxConcurrentResearchUnits)
	}
	if c.MaxBriefLength < minBriefLength {
		return fmt.Errorf("max brief length must be at least %d, got %d", minBriefLength, c.MaxBriefLength)
	}
	for role, model := range map[string]string{
		"scoping":     c.Models.Scoping,
		"research":    c.Models.Research,
		"compression": c.Models.Compression,
		"supervisor":  c.Models.Supervisor,
		"writer":      c.Models.Writer,
	} {
		if model == "" {
			return fmt.Errorf("%s model is required", role)
		}
	}
	return nil
}

func (c Config) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c Config) today() string {
	return c.now().Format("2006-01-02")
}
