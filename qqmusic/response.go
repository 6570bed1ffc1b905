package qqmusic

import (
	"errors"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/tidwall/gjson"
)

const (
	DefaultCDNBaseURL  = "https://isure.stream.qqmusic.qq.com/"
	testFileOnlyReason = "QQ Music returned no purl (likely VIP-only or region-restricted)."
	unknownField       = "Unknown"
)

var ErrMalformedResponse = errors.New("malformed qqmusic response")

// envelope is one of the two response shapes of the musics.fcg endpoint: a
// multi-request response keyed "req_0" or a single-request one keyed "req".
type envelope interface {
	data() gjson.Result
}

type multiRequestEnvelope struct {
	req0 gjson.Result
}

func (e multiRequestEnvelope) data() gjson.Result { return e.req0.Get("data") }

type singleRequestEnvelope struct {
	req gjson.Result
}

func (e singleRequestEnvelope) data() gjson.Result { return e.req.Get("data") }

func decodeEnvelope(body []byte) (envelope, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedResponse
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, ErrMalformedResponse
	}

	candidates := []envelope{
		multiRequestEnvelope{req0: root.Get("req_0")},
		singleRequestEnvelope{req: root.Get("req")},
	}
	for _, env := range candidates {
		if env.data().IsObject() {
			return env, nil
		}
	}
	return nil, ErrMalformedResponse
}

type midURLInfo struct {
	purl string
	msg  string
}

// vkeyData is the shape-independent view of a playback key response.
type vkeyData struct {
	sip         mo.Option[string]
	items       []midURLInfo
	hasTestFile bool
}

func stringField(r gjson.Result, path string) string {
	if v := r.Get(path); v.Type == gjson.String {
		return v.Str
	}
	return ""
}

func decodeVkeyData(body []byte) (*vkeyData, error) {
	env, err := decodeEnvelope(body)
	if nil != err {
		return nil, err
	}
	data := env.data()

	out := vkeyData{
		sip:         mo.None[string](),
		items:       nil,
		hasTestFile: data.Get("testfile2g").Exists(),
	}
	if sip := data.Get("sip"); sip.IsArray() {
		if first := sip.Get("0"); first.Type == gjson.String && strings.TrimSpace(first.Str) != "" {
			out.sip = mo.Some(first.Str)
		}
	}
	if infos := data.Get("midurlinfo"); infos.IsArray() {
		infos.ForEach(func(_, item gjson.Result) bool {
			out.items = append(out.items, midURLInfo{
				purl: stringField(item, "purl"),
				msg:  stringField(item, "msg"),
			})
			return true
		})
	}
	return &out, nil
}

func joinCDNURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// ParsePlaybackURL returns the first non-empty playable path in request
// order, resolved against the CDN base returned by the server.
func ParsePlaybackURL(body []byte) (string, bool) {
	data, err := decodeVkeyData(body)
	if nil != err {
		return "", false
	}

	for _, item := range data.items {
		if strings.TrimSpace(item.purl) == "" {
			continue
		}
		if len(item.purl) >= 4 && strings.EqualFold(item.purl[:4], "http") {
			return item.purl, true
		}
		return joinCDNURL(data.sip.OrElse(DefaultCDNBaseURL), item.purl), true
	}
	return "", false
}

func ParseFailureReason(body []byte) (string, bool) {
	data, err := decodeVkeyData(body)
	if nil != err {
		return "", false
	}

	if len(data.items) > 0 {
		if msg := data.items[0].msg; strings.TrimSpace(msg) != "" {
			return msg, true
		}
	}
	if data.hasTestFile {
		return testFileOnlyReason, true
	}
	return "", false
}

func ParseMediaID(body []byte) mo.Option[string] {
	env, err := decodeEnvelope(body)
	if nil != err {
		return mo.None[string]()
	}

	info := env.data().Get("track_info")
	if !info.IsObject() {
		return mo.None[string]()
	}
	for _, path := range []string{"file.media_mid", "strMediaMid"} {
		if mid := stringField(info, path); strings.TrimSpace(mid) != "" {
			return mo.Some(mid)
		}
	}
	return mo.None[string]()
}

func firstExisting(r gjson.Result, paths ...string) (gjson.Result, bool) {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func artistName(singer gjson.Result) string {
	switch {
	case singer.Type == gjson.String:
		return singer.Str
	case singer.IsArray():
		names := lo.FilterMap(singer.Array(), func(s gjson.Result, _ int) (string, bool) {
			name := stringField(s, "name")
			return name, name != ""
		})
		if len(names) > 0 {
			return strings.Join(names, " / ")
		}
	}
	return unknownField
}

// ParseSearchResults walks data.song.list. Entries missing an id, name, or
// artist are skipped; a malformed document yields no results.
func ParseSearchResults(body []byte) []SearchResult {
	if !gjson.ValidBytes(body) {
		return nil
	}
	list := gjson.GetBytes(body, "data.song.list")
	if !list.IsArray() {
		return nil
	}

	var out []SearchResult
	list.ForEach(func(_, entry gjson.Result) bool {
		id, ok := firstExisting(entry, "songmid", "mid")
		if !ok || id.Type != gjson.String || strings.TrimSpace(id.Str) == "" {
			return true
		}
		name, ok := firstExisting(entry, "songname", "name")
		if !ok {
			return true
		}
		singer, ok := firstExisting(entry, "singer")
		if !ok {
			return true
		}

		out = append(out, SearchResult{
			SongMID: id.Str,
			Title:   lo.Ternary(name.Type == gjson.String, name.Str, unknownField) + " - " + artistName(singer),
		})
		return true
	})
	return out
}
