package resolver

import (
	"errors"
	"strings"
)

type Kind int

const (
	KindDisabled Kind = iota + 1
	KindInvalidID
	KindEmptyPlayableURL
	KindTransport
	KindResolveFailed
	KindSearchFailed
)

// Messages are shown to users verbatim.
//
//nolint:stylecheck,revive
var (
	ErrDisabled         = errors.New("QQ Music resolver is disabled in config.")
	ErrInvalidID        = errors.New("Invalid QQ Music id.")
	ErrEmptyPlayableURL = errors.New("Unable to fetch playable URL.")
	ErrTransport        = errors.New("QQ Music request did not complete.")
	ErrResolveFailed    = errors.New("Failed to resolve QQ Music resource.")
	ErrSearchFailed     = errors.New("Failed to search QQ Music.")
)

const defaultEmptyReason = "This track may require login/VIP or is region-restricted."

func (k Kind) String() string {
	switch k {
	case KindDisabled:
		return "disabled"
	case KindInvalidID:
		return "invalid_id"
	case KindEmptyPlayableURL:
		return "empty_playable_url"
	case KindTransport:
		return "transport"
	case KindResolveFailed:
		return "resolve_failed"
	case KindSearchFailed:
		return "search_failed"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindDisabled:
		return ErrDisabled
	case KindInvalidID:
		return ErrInvalidID
	case KindEmptyPlayableURL:
		return ErrEmptyPlayableURL
	case KindTransport:
		return ErrTransport
	case KindResolveFailed:
		return ErrResolveFailed
	case KindSearchFailed:
		return ErrSearchFailed
	default:
		return nil
	}
}

// outcome is the metrics label of a failed call.
func (k Kind) outcome() string {
	switch k {
	case KindResolveFailed, KindSearchFailed:
		return "failed"
	default:
		return k.String()
	}
}

// Failure is the only error type returned by Resolver. The cause is kept for
// logging and errors.As but is never part of the message.
type Failure struct {
	Kind         Kind
	Detail       string
	CookieStatus string
	cause        error
}

func (f *Failure) Error() string {
	var sb strings.Builder
	if s := f.Kind.sentinel(); nil != s {
		sb.WriteString(s.Error())
	} else {
		sb.WriteString("QQ Music resolver failure.")
	}
	if f.Detail != "" {
		sb.WriteString(" ")
		sb.WriteString(f.Detail)
	}
	if f.CookieStatus != "" {
		sb.WriteString(" Cookie status: ")
		sb.WriteString(f.CookieStatus)
	}
	return sb.String()
}

func (f *Failure) Is(target error) bool {
	s := f.Kind.sentinel()
	return nil != s && target == s
}

func (f *Failure) Unwrap() error {
	return f.cause
}

func newFailure(kind Kind, cause error) *Failure {
	return &Failure{Kind: kind, Detail: "", CookieStatus: "", cause: cause}
}

// AsFailure extracts the Failure carried by err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
