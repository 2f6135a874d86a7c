// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package filter

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efmod/backend/models"
)

func TestScan_Categories(t *testing.T) {
	f := Default()

	tests := []struct {
		name        string
		input       string
		placeholder string
		flag        models.FlagType
		detected    string
	}{
		{"email", "reach me at jane.doe@example.com", PlaceholderEmail, models.FlagEmail, "jane.doe@example.com"},
		{"phone", "call 555-123-4567", PlaceholderPhone, models.FlagPhone, "555-123-4567"},
		{"phone international", "my number is +254 712 345 678", PlaceholderPhone, models.FlagPhone, "+254 712 345 678"},
		{"url scheme", "visit https://example.com/page", PlaceholderURL, models.FlagURL, "https://example.com/page"},
		{"url www", "see www.mysite.org for samples", PlaceholderURL, models.FlagURL, "www.mysite.org"},
		{"url bare", "my portfolio is essays.io/me", PlaceholderURL, models.FlagURL, "essays.io/me"},
		{"handle", "find me @johnsmith", PlaceholderSocial, models.FlagSocial, "@johnsmith"},
		{"hashtag", "search #writerjane", PlaceholderSocial, models.FlagSocial, "#writerjane"},
		{"messaging app", "let's talk on WhatsApp", PlaceholderMessagingApp, models.FlagSocial, "WhatsApp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.Scan(tt.input)
			require.NoError(t, err)
			require.True(t, res.Flagged())
			require.Len(t, res.Flags, 1)

			assert.Contains(t, res.RedactedText, tt.placeholder)
			assert.NotContains(t, res.RedactedText, tt.detected)
			assert.Equal(t, tt.flag, res.Flags[0].Type)
			assert.Equal(t, tt.detected, res.Flags[0].Detected)
			assert.False(t, res.Flags[0].FlaggedAt.IsZero())
		})
	}
}

func TestScan_CleanTextUntouched(t *testing.T) {
	f := Default()

	clean := []string{
		"",
		"Hello, I have finished the draft of chapter two and will upload it tonight.",
		"Please use APA 7th edition and cite at least 5 sources.",
		"The deadline moved to Friday. Thanks!",
		"Order #12345 needs revisions to the introduction.",
		"Résumé wording looks great, merci.",
	}

	for _, text := range clean {
		res, err := f.Scan(text)
		require.NoError(t, err)
		assert.Equal(t, text, res.RedactedText)
		assert.Empty(t, res.Flags)
		assert.False(t, res.Flagged())
	}
}

func TestScan_MultipleCategories(t *testing.T) {
	f := Default()

	res, err := f.Scan("email jane@example.com or see https://example.org/cv")
	require.NoError(t, err)
	require.Len(t, res.Flags, 2)

	assert.Equal(t, models.FlagEmail, res.Flags[0].Type)
	assert.Equal(t, models.FlagURL, res.Flags[1].Type)
	assert.Equal(t, "email [EMAIL FILTERED] or see [URL FILTERED]", res.RedactedText)
}

func TestScan_URLAroundEarlierPlaceholder(t *testing.T) {
	f := Default()

	tests := []struct {
		name     string
		input    string
		redacted string
		first    models.FilterFlag
		url      string
	}{
		{
			"phone in path",
			"see https://example.com/u/5551234567 now",
			"see [URL FILTERED][PHONE FILTERED] now",
			models.FilterFlag{Type: models.FlagPhone, Detected: "5551234567"},
			"https://example.com/u/",
		},
		{
			"email in query",
			"see www.site.com/contact?a@b.com now",
			"see [URL FILTERED][EMAIL FILTERED] now",
			models.FilterFlag{Type: models.FlagEmail, Detected: "a@b.com"},
			"www.site.com/contact?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.Scan(tt.input)
			require.NoError(t, err)
			require.Len(t, res.Flags, 2)

			assert.Equal(t, tt.redacted, res.RedactedText)
			assert.Equal(t, tt.first.Type, res.Flags[0].Type)
			assert.Equal(t, tt.first.Detected, res.Flags[0].Detected)
			assert.Equal(t, models.FlagURL, res.Flags[1].Type)
			assert.Equal(t, tt.url, res.Flags[1].Detected)
			assert.NotContains(t, res.Flags[1].Detected, "[")
		})
	}
}

func TestScan_RepeatedMatches(t *testing.T) {
	f := Default()

	res, err := f.Scan("telegram or signal, or telegram again")
	require.NoError(t, err)
	require.Len(t, res.Flags, 3)
	assert.Equal(t, strings.Count(res.RedactedText, PlaceholderMessagingApp), 3)
}

func TestScan_Deterministic(t *testing.T) {
	f := Default()
	input := "ping @me at a@b.com, 555 123 4567, viber or b.com"

	first, err := f.Scan(input)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.Scan(input)
		require.NoError(t, err)
		assert.Equal(t, first.RedactedText, again.RedactedText)
		require.Len(t, again.Flags, len(first.Flags))
		for j := range first.Flags {
			assert.Equal(t, first.Flags[j].Type, again.Flags[j].Type)
			assert.Equal(t, first.Flags[j].Detected, again.Flags[j].Detected)
		}
	}
}

func TestScan_InvalidUTF8(t *testing.T) {
	_, err := Default().Scan(string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrInvalidText)
}

func TestReload_CustomVocabulary(t *testing.T) {
	f := Default()

	res, err := f.Scan("add me on threema")
	require.NoError(t, err)
	assert.False(t, res.Flagged())

	require.NoError(t, f.Reload(Config{
		MessagingApps:      []string{"threema"},
		InappropriateWords: []string{"idiot"},
	}))

	res, err = f.Scan("add me on threema, idiot")
	require.NoError(t, err)
	require.Len(t, res.Flags, 2)
	assert.Equal(t, "add me on [MESSAGING APP FILTERED], [INAPPROPRIATE FILTERED]", res.RedactedText)
	assert.Equal(t, models.FlagInappropriate, res.Flags[1].Type)

	// the replaced vocabulary no longer carries the defaults
	res, err = f.Scan("whatsapp")
	require.NoError(t, err)
	assert.False(t, res.Flagged())
}

func TestReload_BadPatternKeepsPrevious(t *testing.T) {
	f := Default()

	err := f.Reload(Config{EmailPattern: "([unclosed"})
	require.Error(t, err)

	res, err := f.Scan("a@b.com")
	require.NoError(t, err)
	assert.True(t, res.Flagged())
}

func TestScan_ConcurrentWithReload(t *testing.T) {
	f := Default()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := f.Scan("call 555-123-4567 on telegram")
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, f.Reload(DefaultConfig()))
	}
	wg.Wait()
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.yaml")
	data := []byte(`
tlds: [com, academy]
messaging_apps:
  - whatsapp
  - imo
inappropriate_words: []
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"com", "academy"}, cfg.TLDs)
	assert.Equal(t, []string{"whatsapp", "imo"}, cfg.MessagingApps)

	f, err := New(cfg)
	require.NoError(t, err)

	res, err := f.Scan("try writers.academy or imo")
	require.NoError(t, err)
	require.Len(t, res.Flags, 2)
	assert.Equal(t, "try [URL FILTERED] or [MESSAGING APP FILTERED]", res.RedactedText)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
