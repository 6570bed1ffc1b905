package qqmusic

import (
	"errors"
	"regexp"
	"strings"
)

const (
	ResolverName = "qqmusic"
	Scheme       = ResolverName + ":"
)

var ErrInvalidSongMID = errors.New("could not extract qqmusic song id")

type MatchCertainty int

const (
	MatchNever MatchCertainty = iota
	MatchOnlyIfLast
	MatchAlways
)

func (c MatchCertainty) String() string {
	switch c {
	case MatchNever:
		return "never"
	case MatchOnlyIfLast:
		return "only_if_last"
	case MatchAlways:
		return "always"
	default:
		return "unknown"
	}
}

var (
	domainHints = []string{"y.qq.com", "qq.com"}

	songMIDShape = regexp.MustCompile(`^[0-9A-Za-z]+$`)

	// Alternatives are tried leftmost-first; the first non-empty group wins.
	songMIDFromURL = regexp.MustCompile(
		`(?i)(?:(?:^|/)([0-9A-Za-z]{14,})\b)` +
			`|(?:song(?:detail)?(?:/|\?id=)([0-9A-Za-z]{14,}))` +
			`|(?:[?&]songmid=([0-9A-Za-z]{14,}))`,
	)
)

func hasScheme(s string) bool {
	return len(s) >= len(Scheme) && strings.EqualFold(s[:len(Scheme)], Scheme)
}

func IsLikelySongMID(text string) bool {
	return len(text) >= 12 && len(text) <= 24 && songMIDShape.MatchString(text)
}

// ClassifyMatch reports how confidently uri refers to a QQ Music song. It does
// not consider whether the resolver is enabled.
func ClassifyMatch(uri string) MatchCertainty {
	if hasScheme(uri) {
		return MatchAlways
	}

	lower := strings.ToLower(uri)
	for _, hint := range domainHints {
		if strings.Contains(lower, hint) {
			return MatchOnlyIfLast
		}
	}

	if IsLikelySongMID(uri) {
		return MatchOnlyIfLast
	}
	return MatchNever
}

func ExtractSongMID(input string) (string, error) {
	if hasScheme(input) {
		return input[len(Scheme):], nil
	}

	if groups := songMIDFromURL.FindStringSubmatch(input); nil != groups {
		for _, g := range groups[1:] {
			if g != "" {
				return g, nil
			}
		}
	}

	if IsLikelySongMID(input) {
		return input, nil
	}
	return "", ErrInvalidSongMID
}

func RestoreLink(id string) string {
	if hasScheme(id) {
		return id
	}
	return Scheme + id
}

// TrimScheme removes a leading scheme prefix, if any.
func TrimScheme(id string) string {
	if hasScheme(id) {
		return id[len(Scheme):]
	}
	return id
}
