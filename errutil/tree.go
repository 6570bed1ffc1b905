package errutil

import (
	"fmt"
	"regexp"

	"github.com/xeptore/flaw/v8"
)

type ErrInfo struct {
	Message    string
	TypeName   string
	SyntaxRepr string
	Children   []ErrInfo
}

func (e ErrInfo) FlawP() flaw.P {
	var ch []flaw.P
	if len(e.Children) > 0 {
		ch = make([]flaw.P, len(e.Children))
		for i, child := range e.Children {
			ch[i] = child.FlawP()
		}
	}

	return flaw.P{
		"message":     e.Message,
		"type_name":   e.TypeName,
		"syntax_repr": e.SyntaxRepr,
		"children":    ch,
	}
}

// QQ Music request URLs carry the uin, guid and g_tk derived from the
// session cookie in their query string.
var urlQuery = regexp.MustCompile(`(https?://[^\s?#"'\\]+)\?[^\s#"'\\]*`)

// RedactURL replaces the query string of every URL in s.
func RedactURL(s string) string {
	return urlQuery.ReplaceAllString(s, "${1}?"+redacted)
}

func errInfo(err error, children []ErrInfo) ErrInfo {
	return ErrInfo{
		Message:    RedactURL(err.Error()),
		TypeName:   fmt.Sprintf("%T", err),
		SyntaxRepr: RedactURL(fmt.Sprintf("%+#v", err)),
		Children:   children,
	}
}

// Tree walks the wrap chain of err. URL query strings are redacted from
// messages and syntax representations.
func Tree(err error) ErrInfo {
	if err == nil {
		panic("nil error")
	}

	//nolint:errorlint
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		if inner := x.Unwrap(); nil != inner {
			return errInfo(err, []ErrInfo{Tree(inner)})
		}
		return errInfo(err, nil)
	case interface{ Unwrap() []error }:
		errs := x.Unwrap()
		joined := make([]ErrInfo, 0, len(errs))
		for _, inner := range errs {
			joined = append(joined, Tree(inner))
		}
		return errInfo(err, joined)
	default:
		return errInfo(err, nil)
	}
}
