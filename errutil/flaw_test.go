package errutil_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeptore/flaw/v8"
	"gopkg.in/yaml.v3"

	"github.com/xeptore/qqres/errutil"
)

func TestHTTPResponseFlawPayloadRedactsCredentials(t *testing.T) {
	t.Parallel()

	//nolint:exhaustruct
	res := &http.Response{
		Status:     "403 Forbidden",
		StatusCode: http.StatusForbidden,
		Proto:      "HTTP/1.1",
		Header:     http.Header{"Set-Cookie": {"skey=@secret"}, "Content-Type": {"application/json"}},
		Request: &http.Request{
			Header: http.Header{"Cookie": {"uin=o1; skey=@secret"}, "Referer": {"https://y.qq.com/"}},
		},
	}

	p := errutil.HTTPResponseFlawPayload(res)
	assert.Equal(t, http.StatusForbidden, p["status_code"])

	headers, ok := p["headers"].(flaw.P)
	require.True(t, ok)
	assert.Equal(t, "<redacted>", headers["Set-Cookie"])
	assert.Equal(t, []string{"application/json"}, headers["Content-Type"])

	reqHeaders, ok := p["request_headers"].(flaw.P)
	require.True(t, ok)
	assert.Equal(t, "<redacted>", reqHeaders["Cookie"])
	assert.Equal(t, []string{"https://y.qq.com/"}, reqHeaders["Referer"])
}

func TestFlawToYAML(t *testing.T) {
	t.Parallel()

	f := flaw.From(errors.New("failed to send get request")).Append(flaw.P{"url": "https://u.y.qq.com/cgi-bin/musics.fcg"})
	b, err := errutil.FlawToYAML(f)
	require.NoError(t, err)

	var out errutil.Flaw
	require.NoError(t, yaml.Unmarshal(b, &out))
	assert.Equal(t, "failed to send get request", out.Inner)
	require.NotEmpty(t, out.Records)
	assert.Equal(t, "https://u.y.qq.com/cgi-bin/musics.fcg", out.Records[len(out.Records)-1].Payload["url"])
}

func TestIsFlaw(t *testing.T) {
	t.Parallel()

	assert.True(t, errutil.IsFlaw(flaw.From(errors.New("x"))))
	assert.False(t, errutil.IsFlaw(errors.New("x")))
	assert.Contains(t, errutil.UnknownError(errors.New("x")), "*errors.errorString")
}
