// Package moderation screens user questions and model answers against
// configured blocked keywords and patterns.
package moderation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrBlocked is wrapped by every rejection. Its text classifies as a safety
// filter failure.
var ErrBlocked = errors.New("blocked by safety filter")

// Config lists what to block.
type Config struct {
	Enabled         bool
	BlockedKeywords []string
	BlockedPatterns []string
}

// ContentFilter checks content against configured keywords and patterns.
type ContentFilter struct {
	enabled  bool
	keywords []string
	patterns []*regexp.Regexp
}

// New creates a new content filter.
func New(cfg Config) (*ContentFilter, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.BlockedPatterns))
	for _, p := range cfg.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	keywords := make([]string, 0, len(cfg.BlockedKeywords))
	for _, kw := range cfg.BlockedKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return &ContentFilter{
		enabled:  cfg.Enabled,
		keywords: keywords,
		patterns: patterns,
	}, nil
}

// CheckPrompt returns an error wrapping ErrBlocked if the user's question
// contains blocked content. A nil filter allows everything.
func (f *ContentFilter) CheckPrompt(prompt string) error {
	if err := f.check(prompt); err != nil {
		return fmt.Errorf("question %w", err)
	}
	return nil
}

// CheckResponse returns an error wrapping ErrBlocked if the model's answer
// contains blocked content.
func (f *ContentFilter) CheckResponse(response string) error {
	if err := f.check(response); err != nil {
		return fmt.Errorf("answer %w", err)
	}
	return nil
}

func (f *ContentFilter) check(text string) error {
	if f == nil || !f.enabled {
		return nil
	}

	normalized := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(normalized, kw) {
			return fmt.Errorf("%w: keyword %q", ErrBlocked, kw)
		}
	}
	for i, re := range f.patterns {
		if re.MatchString(text) {
			return fmt.Errorf("%w: pattern #%d", ErrBlocked, i+1)
		}
	}
	return nil
}
