package api

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

const (
	maxTextLength    = 256
	maxSanitizeRound = 5
)

// cleanText strips markup from display strings returned by the backend.
// Entity-encoded markup is decoded and stripped in turn until the text is
// stable, so "&lt;b&gt;" never comes back as a tag.
func cleanText(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = stripMarkup(input)
	input = strings.TrimSpace(input)
	if r := []rune(input); len(r) > maxTextLength {
		input = string(r[:maxTextLength])
	}
	return input
}

func stripMarkup(input string) string {
	for range maxSanitizeRound {
		sanitized := textPolicy.Sanitize(input)
		plain := html.UnescapeString(sanitized)
		if plain == input {
			return plain
		}
		input = plain
	}
	return textPolicy.Sanitize(input)
}

// cleanURL keeps only absolute http(s) URLs.
func cleanURL(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	u, err := url.Parse(input)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}
