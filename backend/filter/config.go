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

package filter

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the rule file format. Empty fields fall back to the defaults,
// except when URLPattern is empty it is rebuilt from TLDs.
type Config struct {
	EmailPattern       string   `yaml:"email_pattern"`
	PhonePattern       string   `yaml:"phone_pattern"`
	URLPattern         string   `yaml:"url_pattern"`
	SocialPattern      string   `yaml:"social_pattern"`
	TLDs               []string `yaml:"tlds"`
	MessagingApps      []string `yaml:"messaging_apps"`
	InappropriateWords []string `yaml:"inappropriate_words"`
}

const (
	defaultEmailPattern  = `(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`
	defaultPhonePattern  = `(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{2,4}\)|\d{2,4})[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}\b`
	defaultSocialPattern = `\B[@#][A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*`
)

var (
	defaultTLDs = []string{
		"com", "net", "org", "edu", "gov", "io", "co", "info", "biz", "me",
		"us", "uk", "ca", "de", "app", "dev", "xyz", "online", "site", "ke", "ng",
	}
	defaultMessagingApps = []string{
		"whatsapp", "telegram", "signal", "viber", "wechat", "line", "kakao",
		"skype", "discord", "snapchat",
	}
)

func DefaultConfig() Config {
	return Config{
		EmailPattern:  defaultEmailPattern,
		PhonePattern:  defaultPhonePattern,
		SocialPattern: defaultSocialPattern,
		TLDs:          append([]string(nil), defaultTLDs...),
		MessagingApps: append([]string(nil), defaultMessagingApps...),
	}
}

func (c Config) withDefaults() Config {
	if c.EmailPattern == "" {
		c.EmailPattern = defaultEmailPattern
	}
	if c.PhonePattern == "" {
		c.PhonePattern = defaultPhonePattern
	}
	if c.SocialPattern == "" {
		c.SocialPattern = defaultSocialPattern
	}
	if len(c.TLDs) == 0 {
		c.TLDs = defaultTLDs
	}
	if len(c.MessagingApps) == 0 {
		c.MessagingApps = defaultMessagingApps
	}
	if c.URLPattern == "" {
		c.URLPattern = urlPattern(c.TLDs)
	}
	return c
}

func urlPattern(tlds []string) string {
	quoted := make([]string, 0, len(tlds))
	for _, tld := range tlds {
		tld = strings.Trim(strings.TrimSpace(tld), ".")
		if tld != "" {
			quoted = append(quoted, regexp.QuoteMeta(tld))
		}
	}
	if len(quoted) == 0 {
		return urlPattern(defaultTLDs)
	}
	label := `[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?`
	// Brackets end a URL so a placeholder from an earlier rule is never swallowed.
	tail := `[^\s\[\]]`
	return `(?i)(?:https?://` + tail + `+|www\.` + tail + `+|\b` + label + `(?:\.` + label + `)*\.(?:` +
		strings.Join(quoted, "|") + `)\b(?:/` + tail + `*)?)`
}

// LoadConfig reads a YAML rule file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read filter config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse filter config %s: %w", path, err)
	}
	return cfg, nil
}
