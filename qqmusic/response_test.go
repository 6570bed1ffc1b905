package qqmusic_test

import (
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"

	"github.com/xeptore/qqres/qqmusic"
)

func TestParsePlaybackURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		expected string
		ok       bool
	}{
		{
			name:     "relative path with sip",
			body:     `{"req_0":{"data":{"sip":["https://cdn.example/"],"midurlinfo":[{"purl":"x/y.m4a"}]}}}`,
			expected: "https://cdn.example/x/y.m4a",
			ok:       true,
		},
		{
			name:     "single separator when both sides carry one",
			body:     `{"req_0":{"data":{"sip":["https://cdn.example/"],"midurlinfo":[{"purl":"/x/y.m4a"}]}}}`,
			expected: "https://cdn.example/x/y.m4a",
			ok:       true,
		},
		{
			name:     "single separator when neither side carries one",
			body:     `{"req_0":{"data":{"sip":["https://cdn.example"],"midurlinfo":[{"purl":"x/y.m4a"}]}}}`,
			expected: "https://cdn.example/x/y.m4a",
			ok:       true,
		},
		{
			name:     "absolute purl is returned unchanged",
			body:     `{"req_0":{"data":{"sip":["https://cdn.example/"],"midurlinfo":[{"purl":"http://other.example/a.m4a?vkey=1"}]}}}`,
			expected: "http://other.example/a.m4a?vkey=1",
			ok:       true,
		},
		{
			name:     "default cdn when sip is missing",
			body:     `{"req_0":{"data":{"midurlinfo":[{"purl":"C400abc.m4a?vkey=k"}]}}}`,
			expected: "https://isure.stream.qqmusic.qq.com/C400abc.m4a?vkey=k",
			ok:       true,
		},
		{
			name:     "default cdn when sip is empty",
			body:     `{"req_0":{"data":{"sip":[],"midurlinfo":[{"purl":"C400abc.m4a"}]}}}`,
			expected: "https://isure.stream.qqmusic.qq.com/C400abc.m4a",
			ok:       true,
		},
		{
			name:     "first non-empty candidate wins",
			body:     `{"req_0":{"data":{"sip":["https://cdn.example/"],"midurlinfo":[{"purl":""},{"purl":"  "},{"purl":"second.mp3"},{"purl":"third.mp3"}]}}}`,
			expected: "https://cdn.example/second.mp3",
			ok:       true,
		},
		{
			name:     "single request envelope",
			body:     `{"req":{"data":{"sip":["https://cdn.example/"],"midurlinfo":[{"purl":"x.m4a"}]}}}`,
			expected: "https://cdn.example/x.m4a",
			ok:       true,
		},
		{
			name:     "req_0 preferred over req",
			body:     `{"req":{"data":{"sip":["https://dispatch.example/"]}},"req_0":{"data":{"sip":["https://cdn.example/"],"midurlinfo":[{"purl":"x.m4a"}]}}}`,
			expected: "https://cdn.example/x.m4a",
			ok:       true,
		},
		{
			name: "all empty",
			body: `{"req_0":{"data":{"midurlinfo":[{"purl":"","msg":"need vip"}]}}}`,
			ok:   false,
		},
		{
			name: "no midurlinfo",
			body: `{"req_0":{"data":{"sip":["https://cdn.example/"]}}}`,
			ok:   false,
		},
		{
			name: "non-string purl",
			body: `{"req_0":{"data":{"midurlinfo":[{"purl":12}]}}}`,
			ok:   false,
		},
		{
			name: "unknown envelope",
			body: `{"code":0}`,
			ok:   false,
		},
		{
			name: "malformed json",
			body: `{"req_0":`,
			ok:   false,
		},
		{
			name: "not an object",
			body: `[1,2,3]`,
			ok:   false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, ok := qqmusic.ParsePlaybackURL([]byte(test.body))
			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestParseFailureReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		expected string
		ok       bool
	}{
		{
			name:     "remote message",
			body:     `{"req_0":{"data":{"midurlinfo":[{"purl":"","msg":"need vip"},{"purl":"","msg":"other"}],"testfile2g":""}}}`,
			expected: "need vip",
			ok:       true,
		},
		{
			name:     "test file field",
			body:     `{"req_0":{"data":{"midurlinfo":[{"purl":""}],"testfile2g":"C400abc.m4a"}}}`,
			expected: "QQ Music returned no purl (likely VIP-only or region-restricted).",
			ok:       true,
		},
		{
			name:     "test file field without candidates",
			body:     `{"req":{"data":{"testfile2g":""}}}`,
			expected: "QQ Music returned no purl (likely VIP-only or region-restricted).",
			ok:       true,
		},
		{
			name: "blank message",
			body: `{"req_0":{"data":{"midurlinfo":[{"purl":"","msg":"  "}]}}}`,
			ok:   false,
		},
		{
			name: "nothing to report",
			body: `{"req_0":{"data":{}}}`,
			ok:   false,
		},
		{
			name: "malformed",
			body: `<html></html>`,
			ok:   false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, ok := qqmusic.ParseFailureReason([]byte(test.body))
			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestParseMediaID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		expected mo.Option[string]
	}{
		{
			name:     "file media mid",
			body:     `{"req":{"data":{"track_info":{"file":{"media_mid":"003OUlho2HcRHC"},"strMediaMid":"other"}}}}`,
			expected: mo.Some("003OUlho2HcRHC"),
		},
		{
			name:     "legacy media mid",
			body:     `{"req":{"data":{"track_info":{"strMediaMid":"003OUlho2HcRHC"}}}}`,
			expected: mo.Some("003OUlho2HcRHC"),
		},
		{
			name:     "empty media mid falls back",
			body:     `{"req":{"data":{"track_info":{"file":{"media_mid":""},"strMediaMid":"003OUlho2HcRHC"}}}}`,
			expected: mo.Some("003OUlho2HcRHC"),
		},
		{
			name:     "non-string media mid",
			body:     `{"req":{"data":{"track_info":{"file":{"media_mid":123}}}}}`,
			expected: mo.None[string](),
		},
		{
			name:     "missing track info",
			body:     `{"req":{"data":{}}}`,
			expected: mo.None[string](),
		},
		{
			name:     "malformed",
			body:     `null`,
			expected: mo.None[string](),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, qqmusic.ParseMediaID([]byte(test.body)))
		})
	}
}

func TestParseSearchResults(t *testing.T) {
	t.Parallel()

	t.Run("legacy entries", func(t *testing.T) {
		t.Parallel()

		body := `{"data":{"song":{"list":[
			{"songmid":"0039MnYb0qxYhV","songname":"晴天","singer":"周杰伦"},
			{"songmid":"","songname":"blank id","singer":"someone"},
			{"songname":"missing id","singer":"someone"},
			{"songmid":"002Zkt5S2z8JZx","singer":"missing name"},
			{"songmid":"002Zkt5S2z8JZx","songname":"missing singer"},
			{"songmid":"001Qu4I30eVFYb","songname":null,"singer":"Artist"}
		]}}}`

		got := qqmusic.ParseSearchResults([]byte(body))
		assert.Equal(t, []qqmusic.SearchResult{
			{SongMID: "0039MnYb0qxYhV", Title: "晴天 - 周杰伦"},
			{SongMID: "001Qu4I30eVFYb", Title: "Unknown - Artist"},
		}, got)
	})

	t.Run("new json entries", func(t *testing.T) {
		t.Parallel()

		body := `{"data":{"song":{"list":[
			{"mid":"0039MnYb0qxYhV","name":"Song","singer":[{"name":"A"},{"name":"B"}]},
			{"mid":"003OUlho2HcRHC","name":"Solo","singer":[]}
		]}}}`

		got := qqmusic.ParseSearchResults([]byte(body))
		assert.Equal(t, []qqmusic.SearchResult{
			{SongMID: "0039MnYb0qxYhV", Title: "Song - A / B"},
			{SongMID: "003OUlho2HcRHC", Title: "Solo - Unknown"},
		}, got)
	})

	t.Run("malformed documents", func(t *testing.T) {
		t.Parallel()

		for _, body := range []string{``, `{`, `{"data":{}}`, `{"data":{"song":{"list":{}}}}`, `"text"`} {
			assert.Empty(t, qqmusic.ParseSearchResults([]byte(body)), "body %q", body)
		}
	})
}
