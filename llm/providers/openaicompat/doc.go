// Package openaicompat implements llm.Provider for any backend speaking the
// OpenAI Chat Completions protocol. The default target is OpenRouter, which
// fronts every model the research run uses.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    APIKey:       cfg.LLM.APIKey,
//	    BaseURL:      cfg.LLM.BaseURL,
//	    DefaultModel: cfg.LLM.ResearchModel,
//	}, logger)
package openaicompat
