package qqmusic

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/qqres/errutil"
)

const (
	musicsAPIURL     = "https://u.y.qq.com/cgi-bin/musics.fcg"
	searchAPIURL     = "https://c.y.qq.com/soso/fcgi-bin/client_search_cp"
	DefaultReferer   = "https://y.qq.com/"
	Origin           = "https://y.qq.com"
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	searchPageSize   = 20
	searchID         = "60997426243446155"
	clientType       = 24
	playbackPlatform = "20"
)

type Request struct {
	URL    string
	Header http.Header
}

// Session carries everything a request needs from the caller's current
// configuration. Build it per call; it is never shared across calls.
type Session struct {
	Cookie      Cookie
	Referer     string
	Credentials Credentials
}

func NewSession(cookie, referer string, r Rand) Session {
	c := Cookie(cookie)
	return Session{
		Cookie:      c,
		Referer:     referer,
		Credentials: c.Credentials(r),
	}
}

func (s Session) header() http.Header {
	h := make(http.Header, 3)
	h.Set("Referer", lo.Ternary(s.Referer == "", DefaultReferer, s.Referer))
	h.Set("Origin", Origin)
	if !s.Cookie.IsZero() {
		h.Set("Cookie", string(s.Cookie))
	}
	return h
}

type module struct {
	Module string `json:"module"`
	Method string `json:"method"`
	Param  any    `json:"param"`
}

type cdnDispatchParam struct {
	GUID     string `json:"guid"`
	CallType int    `json:"calltype"`
	UserIP   string `json:"userip"`
}

type vkeyParam struct {
	GUID      string   `json:"guid"`
	UIN       string   `json:"uin"`
	SongMID   []string `json:"songmid"`
	SongType  []int    `json:"songtype"`
	LoginFlag int      `json:"loginflag"`
	Platform  string   `json:"platform"`
	Filename  []string `json:"filename"`
}

type playbackComm struct {
	UIN      string `json:"uin"`
	Format   string `json:"format"`
	CT       int    `json:"ct"`
	CV       int    `json:"cv"`
	Platform string `json:"platform"`
}

type playbackKeyEnvelope struct {
	Req  module       `json:"req"`
	Req0 module       `json:"req_0"`
	Comm playbackComm `json:"comm"`
}

type songDetailParam struct {
	SongMID  string `json:"song_mid"`
	SongType int    `json:"song_type"`
}

type detailComm struct {
	CT int `json:"ct"`
	CV int `json:"cv"`
}

type mediaIDEnvelope struct {
	Req  module     `json:"req"`
	Comm detailComm `json:"comm"`
}

// encodeQuery percent-encodes spaces as %20 rather than '+'. A literal '+' is
// already escaped as %2B by url.Values.Encode.
func encodeQuery(v url.Values) string {
	return strings.ReplaceAll(v.Encode(), "+", "%20")
}

func musicsURL(payload any, gtk string) (string, error) {
	data, err := json.Marshal(payload)
	if nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return "", flaw.From(fmt.Errorf("failed to marshal request payload: %v", err)).Append(flawP)
	}

	reqURL, err := url.Parse(musicsAPIURL)
	if nil != err {
		flawP := flaw.P{"url": musicsAPIURL, "err_debug_tree": errutil.Tree(err).FlawP()}
		return "", flaw.From(fmt.Errorf("failed to parse musics API URL: %v", err)).Append(flawP)
	}

	params := make(url.Values, 7)
	params.Add("format", "json")
	params.Add("inCharset", "utf8")
	params.Add("outCharset", "utf-8")
	params.Add("needNewCode", "0")
	params.Add("platform", "yqq.json")
	if gtk != "" {
		params.Add("g_tk", gtk)
	}
	params.Add("data", string(data))
	reqURL.RawQuery = encodeQuery(params)
	return reqURL.String(), nil
}

// PlaybackKeyRequest composes the combined CDN dispatch and vkey lookup
// request. Every filename is requested against the same song mid.
func (s Session) PlaybackKeyRequest(songMID string, filenames []string) (*Request, error) {
	songMIDs := make([]string, len(filenames))
	songTypes := make([]int, len(filenames))
	for i := range filenames {
		songMIDs[i] = songMID
	}

	payload := playbackKeyEnvelope{
		Req: module{
			Module: "CDN.SrfCdnDispatchServer",
			Method: "GetCdnDispatch",
			Param: cdnDispatchParam{
				GUID:     s.Credentials.GUID,
				CallType: 0,
				UserIP:   "",
			},
		},
		Req0: module{
			Module: "vkey.GetVkeyServer",
			Method: "CgiGetVkey",
			Param: vkeyParam{
				GUID:      s.Credentials.GUID,
				UIN:       s.Credentials.UIN,
				SongMID:   songMIDs,
				SongType:  songTypes,
				LoginFlag: 1,
				Platform:  playbackPlatform,
				Filename:  filenames,
			},
		},
		Comm: playbackComm{
			UIN:      s.Credentials.UIN,
			Format:   "json",
			CT:       clientType,
			CV:       0,
			Platform: "yqq.json",
		},
	}

	reqURL, err := musicsURL(payload, s.Credentials.GTK)
	if nil != err {
		return nil, err
	}

	h := s.header()
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	return &Request{URL: reqURL, Header: h}, nil
}

func (s Session) MediaIDRequest(songMID string) (*Request, error) {
	payload := mediaIDEnvelope{
		Req: module{
			Module: "music.pf_song_detail_svr",
			Method: "get_song_detail_yqq",
			Param:  songDetailParam{SongMID: songMID, SongType: 0},
		},
		Comm: detailComm{CT: clientType, CV: 0},
	}

	reqURL, err := musicsURL(payload, "")
	if nil != err {
		return nil, err
	}
	return &Request{URL: reqURL, Header: s.header()}, nil
}

func (s Session) SearchRequest(keyword string) (*Request, error) {
	reqURL, err := url.Parse(searchAPIURL)
	if nil != err {
		flawP := flaw.P{"url": searchAPIURL, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to parse search API URL: %v", err)).Append(flawP)
	}

	params := make(url.Values, 24)
	params.Add("ct", "24")
	params.Add("qqmusic_ver", "1298")
	params.Add("new_json", "1")
	params.Add("remoteplace", "txt.yqq.song")
	params.Add("searchid", searchID)
	params.Add("t", "0")
	params.Add("aggr", "1")
	params.Add("cr", "1")
	params.Add("catZhida", "1")
	params.Add("lossless", "0")
	params.Add("flag_qc", "0")
	params.Add("p", "1")
	params.Add("n", strconv.Itoa(searchPageSize))
	params.Add("w", keyword)
	params.Add("g_tk", s.Credentials.GTK)
	params.Add("loginUin", "0")
	params.Add("hostUin", "0")
	params.Add("format", "json")
	params.Add("inCharset", "utf8")
	params.Add("outCharset", "utf-8")
	params.Add("notice", "0")
	params.Add("platform", "yqq.json")
	params.Add("needNewCode", "0")
	reqURL.RawQuery = encodeQuery(params)

	return &Request{URL: reqURL.String(), Header: s.header()}, nil
}
