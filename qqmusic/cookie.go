package qqmusic

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	anonymousUIN = "0"
	gtkSeed      = 5381
	guidMin      = 100_000_000
	guidMax      = 2_147_483_647
)

// Rand is the source of the random client GUID used when the cookie carries
// no persistent id. *rand.Rand satisfies it.
type Rand interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 {
	return rand.Int64N(n) //nolint:gosec
}

func DefaultRand() Rand {
	return globalRand{}
}

// Cookie is the raw Cookie header value copied from a logged-in browser
// session. Fields are looked up independently so irregular spacing and
// ordering are tolerated.
type Cookie string

func (c Cookie) IsZero() bool {
	return strings.TrimSpace(string(c)) == ""
}

func (c Cookie) Lookup(name string) (string, bool) {
	if c.IsZero() {
		return "", false
	}
	re, ok := cookieFieldPatterns[name]
	if !ok {
		re = cookieFieldPattern(name)
	}
	m := re.FindStringSubmatch(string(c))
	if nil == m {
		return "", false
	}
	return m[1], true
}

// lookupAll returns every value of name in cookie order. Browser exports can
// carry the same field more than once.
func (c Cookie) lookupAll(name string) []string {
	if c.IsZero() {
		return nil
	}
	re, ok := cookieFieldPatterns[name]
	if !ok {
		re = cookieFieldPattern(name)
	}
	matches := re.FindAllStringSubmatch(string(c), -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func (c Cookie) has(name string) bool {
	v, ok := c.Lookup(name)
	return ok && v != ""
}

func leadingDigits(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		return s
	}
	return s[:end]
}

func (c Cookie) persistentID() (string, bool) {
	fields := []struct {
		name   string
		minLen int
	}{
		{name: "pgv_pvid", minLen: 8},
		{name: "ts_uid", minLen: 6},
	}
	for _, f := range fields {
		for _, v := range c.lookupAll(f.name) {
			if digits := leadingDigits(v); len(digits) >= f.minLen {
				return digits, true
			}
		}
	}
	return "", false
}

func (c Cookie) GUID(r Rand) string {
	if id, ok := c.persistentID(); ok {
		return id
	}
	return strconv.FormatInt(guidMin+r.Int64N(guidMax-guidMin), 10)
}

func (c Cookie) UIN() string {
	v, ok := c.Lookup("uin")
	if !ok || v == "" {
		return anonymousUIN
	}
	if first := v[0]; first < '0' || first > '9' {
		v = v[1:]
	}
	if digits := leadingDigits(v); digits != "" {
		return digits
	}
	return anonymousUIN
}

// GTK derives the g_tk anti-CSRF token from the skey field. The remote side
// recomputes the same hash, so any deviation yields silently empty results.
func (c Cookie) GTK() string {
	skey, ok := c.Lookup("skey")
	if !ok || skey == "" {
		return strconv.Itoa(gtkSeed)
	}
	return strconv.FormatInt(HashGTK(skey), 10)
}

func HashGTK(skey string) int64 {
	var hash int64 = gtkSeed
	for _, unit := range utf16.Encode([]rune(skey)) {
		hash = hash*33 + int64(unit)
	}
	return hash & 0x7fffffff
}

type Credentials struct {
	GUID string
	UIN  string
	GTK  string
}

func (c Cookie) Credentials(r Rand) Credentials {
	return Credentials{
		GUID: c.GUID(r),
		UIN:  c.UIN(),
		GTK:  c.GTK(),
	}
}

// Diagnose summarizes which authentication and VIP related fields the cookie
// carries. It is attached to empty playable URL failures.
func (c Cookie) Diagnose() string {
	if c.IsZero() {
		return "cookie not set"
	}

	var present, vip, missing []string
	if uin, ok := c.Lookup("uin"); ok && uinShape.MatchString(uin) {
		present = append(present, "uin")
	} else {
		missing = append(missing, "uin")
	}
	if c.has("skey") {
		present = append(present, "skey")
	} else {
		missing = append(missing, "skey (required for VIP)")
	}
	for _, name := range []string{"p_skey", "p_lskey"} {
		if c.has(name) {
			present = append(present, name)
		}
	}
	if v, ok := c.Lookup("vip_type"); ok && strings.ContainsAny(v, "123456789") {
		vip = append(vip, "vip_type")
	}
	if c.has("login_type") {
		vip = append(vip, "login_type")
	}

	parts := make([]string, 0, 3)
	if len(present) > 0 {
		parts = append(parts, "present["+strings.Join(present, ",")+"]")
	}
	if len(vip) > 0 {
		parts = append(parts, "vip["+strings.Join(vip, ",")+"]")
	}
	if len(missing) > 0 {
		parts = append(parts, "missing["+strings.Join(missing, ",")+"]")
	}
	return strings.Join(parts, " ")
}

var (
	uinShape            = regexp.MustCompile(`^o?\d+`)
	cookieFieldPatterns = make(map[string]*regexp.Regexp)
)

func init() {
	for _, name := range []string{"pgv_pvid", "ts_uid", "uin", "skey", "p_skey", "p_lskey", "vip_type", "login_type"} {
		cookieFieldPatterns[name] = cookieFieldPattern(name)
	}
}

func cookieFieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|;\s*)` + regexp.QuoteMeta(name) + `=([^;]*)`)
}
