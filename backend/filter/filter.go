// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package filter detects and redacts off-platform contact details in
// message text. Detection is pattern based; the rule set comes from Config
// and can be swapped at runtime with Reload.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/efchatnet/efmod/backend/models"
)

const (
	PlaceholderEmail         = "[EMAIL FILTERED]"
	PlaceholderPhone         = "[PHONE FILTERED]"
	PlaceholderURL           = "[URL FILTERED]"
	PlaceholderSocial        = "[SOCIAL FILTERED]"
	PlaceholderMessagingApp  = "[MESSAGING APP FILTERED]"
	PlaceholderInappropriate = "[INAPPROPRIATE FILTERED]"
)

var ErrInvalidText = errors.New("message text is not valid UTF-8")

// Result is the outcome of a scan. Violations are data, not errors.
type Result struct {
	RedactedText string
	Flags        []models.FilterFlag
}

// Flagged reports whether anything was redacted.
func (r Result) Flagged() bool {
	return len(r.Flags) > 0
}

type rule struct {
	flag        models.FlagType
	placeholder string
	re          *regexp.Regexp
}

type ruleSet struct {
	rules []rule
}

// Filter is safe for concurrent use.
type Filter struct {
	set atomic.Pointer[ruleSet]
	now func() time.Time
}

// New compiles cfg into a Filter.
func New(cfg Config) (*Filter, error) {
	f := &Filter{now: time.Now}
	if err := f.Reload(cfg); err != nil {
		return nil, err
	}
	return f, nil
}

// Default returns a Filter built from DefaultConfig.
func Default() *Filter {
	f, err := New(DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("filter: default rules do not compile: %v", err))
	}
	return f
}

// Reload replaces the active rule set. On error the previous set stays.
func (f *Filter) Reload(cfg Config) error {
	set, err := compile(cfg.withDefaults())
	if err != nil {
		return err
	}
	f.set.Store(set)
	return nil
}

// Scan applies every rule in a fixed order: email, phone, url, social
// handles, messaging apps, inappropriate words. Each match is replaced by
// its placeholder and recorded as a flag. When nothing matches the returned
// text is identical to the input.
func (f *Filter) Scan(text string) (Result, error) {
	if !utf8.ValidString(text) {
		return Result{}, ErrInvalidText
	}

	set := f.set.Load()
	now := f.now()
	working := text
	var flags []models.FilterFlag

	for _, r := range set.rules {
		working = r.re.ReplaceAllStringFunc(working, func(match string) string {
			flags = append(flags, models.FilterFlag{
				Type:      r.flag,
				Detected:  match,
				FlaggedAt: now,
			})
			return r.placeholder
		})
	}

	if len(flags) == 0 {
		return Result{RedactedText: text}, nil
	}
	return Result{RedactedText: working, Flags: flags}, nil
}

func compile(cfg Config) (*ruleSet, error) {
	type source struct {
		flag        models.FlagType
		placeholder string
		pattern     string
	}

	sources := []source{
		{models.FlagEmail, PlaceholderEmail, cfg.EmailPattern},
		{models.FlagPhone, PlaceholderPhone, cfg.PhonePattern},
		{models.FlagURL, PlaceholderURL, cfg.URLPattern},
		{models.FlagSocial, PlaceholderSocial, cfg.SocialPattern},
		{models.FlagSocial, PlaceholderMessagingApp, wordPattern(cfg.MessagingApps)},
		{models.FlagInappropriate, PlaceholderInappropriate, wordPattern(cfg.InappropriateWords)},
	}

	set := &ruleSet{}
	for _, s := range sources {
		if s.pattern == "" {
			continue
		}
		re, err := regexp.Compile(s.pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %s rule: %w", s.flag, err)
		}
		set.rules = append(set.rules, rule{flag: s.flag, placeholder: s.placeholder, re: re})
	}
	return set, nil
}

// wordPattern matches any of words as a whole word, case-insensitively.
func wordPattern(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	if len(quoted) == 0 {
		return ""
	}
	return `(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`
}
