package resolver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"
	"github.com/xeptore/flaw/v8"
	"golang.org/x/sync/singleflight"

	"github.com/xeptore/qqres/cache"
	"github.com/xeptore/qqres/config"
	"github.com/xeptore/qqres/errutil"
	"github.com/xeptore/qqres/log"
	"github.com/xeptore/qqres/metrics"
	"github.com/xeptore/qqres/qqmusic"
)

const (
	playbackResponseLogLimit = 1200
	searchResponseLogLimit   = 500
)

var errMediaIDNotFound = errors.New("song detail response carries no media mid")

type ConfigSource interface {
	QQMusic() config.QQMusic
}

type Transport interface {
	Get(ctx context.Context, link string, header http.Header) ([]byte, error)
}

type Resolver struct {
	config   ConfigSource
	client   Transport
	cache    *cache.Cache
	metrics  *metrics.Metrics
	rand     qqmusic.Rand
	logger   zerolog.Logger
	resolves singleflight.Group
	searches singleflight.Group
}

// New builds a resolver. c and m may be nil; a nil rnd uses the global
// random source.
func New(cfg ConfigSource, client Transport, c *cache.Cache, m *metrics.Metrics, rnd qqmusic.Rand, logger zerolog.Logger) *Resolver {
	if nil == rnd {
		rnd = qqmusic.DefaultRand()
	}
	//nolint:exhaustruct
	return &Resolver{
		config:  cfg,
		client:  client,
		cache:   c,
		metrics: m,
		rand:    rnd,
		logger:  logger,
	}
}

func (r *Resolver) Name() string {
	return qqmusic.ResolverName
}

func (r *Resolver) Match(uri string) qqmusic.MatchCertainty {
	if !r.config.QQMusic().Enabled {
		return qqmusic.MatchNever
	}
	return qqmusic.ClassifyMatch(uri)
}

func (r *Resolver) RestoreLink(id string) string {
	return qqmusic.RestoreLink(id)
}

func (r *Resolver) ResolveFromURI(ctx context.Context, uri string) (*qqmusic.Resolution, error) {
	cfg := r.config.QQMusic()
	if !cfg.Enabled {
		return nil, r.resolveFailed(newFailure(KindDisabled, nil))
	}

	id, err := qqmusic.ExtractSongMID(strings.TrimSpace(uri))
	if nil != err {
		return nil, r.resolveFailed(newFailure(KindInvalidID, err))
	}
	return r.resolve(ctx, cfg, id, "")
}

// ResolveFromID resolves a bare song mid. A leading scheme prefix is
// tolerated. An empty title defaults to the song mid.
func (r *Resolver) ResolveFromID(ctx context.Context, id, title string) (*qqmusic.Resolution, error) {
	cfg := r.config.QQMusic()
	if !cfg.Enabled {
		return nil, r.resolveFailed(newFailure(KindDisabled, nil))
	}
	return r.resolve(ctx, cfg, qqmusic.TrimScheme(strings.TrimSpace(id)), title)
}

func (r *Resolver) resolve(ctx context.Context, cfg config.QQMusic, id, title string) (*qqmusic.Resolution, error) {
	if strings.TrimSpace(id) == "" {
		return nil, r.resolveFailed(newFailure(KindInvalidID, qqmusic.ErrInvalidSongMID))
	}

	key := strings.Join([]string{id, string(cfg.Quality()), cfg.Cookie, cfg.Referer}, "\x00")
	timeout := config.MediaIDRequestTimeout + config.PlaybackKeyRequestTimeout
	v, err := shared(ctx, &r.resolves, key, timeout, func(ctx context.Context) (any, error) {
		return r.playbackURL(ctx, cfg, id)
	})
	if nil != err {
		return nil, r.resolveFailed(err)
	}

	r.metrics.ObserveResolve("resolved")
	if strings.TrimSpace(title) == "" {
		title = id
	}
	return &qqmusic.Resolution{URL: v.(string), SongMID: id, Title: title}, nil //nolint:forcetypeassert
}

// shared runs fn once for all concurrent callers of key. fn is detached from
// caller cancellation and bounded by timeout; each caller stops waiting when
// its own ctx ends.
func shared(ctx context.Context, g *singleflight.Group, key string, timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := g.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return fn(ctx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, newFailure(KindTransport, ctx.Err())
	}
}

func (r *Resolver) resolveFailed(err error) error {
	f, ok := AsFailure(err)
	if !ok {
		f = r.classify(KindResolveFailed, err)
	}
	r.metrics.ObserveResolve(f.Kind.outcome())
	return f
}

// classify converts an unexpected error into a Failure of kind fallback,
// except for context errors which are reported as transport failures.
func (r *Resolver) classify(fallback Kind, err error) *Failure {
	if errutil.IsContextErr(err) {
		return newFailure(KindTransport, err)
	}
	return newFailure(fallback, err)
}

func (r *Resolver) playbackURL(ctx context.Context, cfg config.QQMusic, id string) (string, error) {
	logger := r.logger.With().Str("song_mid", id).Logger()

	session := qqmusic.NewSession(cfg.Cookie, cfg.Referer, r.rand)
	mediaMID := r.lookupMediaID(ctx, session, id, logger)
	filenames := qqmusic.FilenameCandidates(cfg.Quality(), id, mediaMID)

	req, err := session.PlaybackKeyRequest(id, filenames)
	if nil != err {
		logger.Debug().Func(log.Flaw(err)).Msg("Failed to compose playback key request")
		return "", r.classify(KindResolveFailed, err)
	}

	logger.
		Debug().
		Str("g_tk", session.Credentials.GTK).
		Str("uin", session.Credentials.UIN).
		Str("guid", session.Credentials.GUID).
		Msg("Requesting playback key")

	body, err := r.get(ctx, metrics.EndpointPlaybackKey, config.PlaybackKeyRequestTimeout, req)
	if nil != err {
		logger.Debug().Func(log.Flaw(err)).Msg("Playback key request failed")
		return "", r.classify(KindResolveFailed, err)
	}
	logger.Debug().Str("response", log.Truncate(body, playbackResponseLogLimit)).Msg("Playback key response")

	if link, ok := qqmusic.ParsePlaybackURL(body); ok {
		return link, nil
	}

	reason, ok := qqmusic.ParseFailureReason(body)
	if !ok {
		reason = defaultEmptyReason
	}
	if mediaMID.IsPresent() && nil != r.cache {
		r.cache.MediaIDs.Delete(id)
	}
	cookieStatus := session.Cookie.Diagnose()
	logger.
		Warn().
		Str("media_mid", mediaMID.OrElse("-")).
		Str("uin", session.Credentials.UIN).
		Str("guid", session.Credentials.GUID).
		Strs("filenames", filenames).
		Str("reason", reason).
		Str("cookie_status", cookieStatus).
		Msg("Empty playable URL")

	return "", &Failure{
		Kind:         KindEmptyPlayableURL,
		Detail:       reason,
		CookieStatus: cookieStatus,
		cause:        nil,
	}
}

// lookupMediaID never fails; a missing media mid only narrows the filename
// candidates.
func (r *Resolver) lookupMediaID(ctx context.Context, session qqmusic.Session, id string, logger zerolog.Logger) mo.Option[string] {
	fetch := func() (string, error) {
		req, err := session.MediaIDRequest(id)
		if nil != err {
			return "", err
		}
		body, err := r.get(ctx, metrics.EndpointMediaID, config.MediaIDRequestTimeout, req)
		if nil != err {
			return "", err
		}
		mid, ok := qqmusic.ParseMediaID(body).Get()
		if !ok {
			return "", flaw.From(errMediaIDNotFound).Append(flaw.P{"response": log.Truncate(body, playbackResponseLogLimit)})
		}
		return mid, nil
	}

	var (
		mid string
		err error
	)
	if nil == r.cache {
		mid, err = fetch()
	} else {
		item, fetchErr := r.cache.MediaIDs.Fetch(id, cache.DefaultMediaIDTTL, fetch)
		if err = fetchErr; nil == err {
			mid = item.Value()
		}
	}
	if nil != err {
		logger.Debug().Func(log.Flaw(err)).Msg("Failed to fetch media mid")
		return mo.None[string]()
	}
	return mo.Some(mid)
}

func (r *Resolver) get(ctx context.Context, endpoint string, timeout time.Duration, req *qqmusic.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	body, err := r.client.Get(ctx, req.URL, req.Header)
	r.metrics.ObserveUpstream(endpoint, time.Since(start))
	return body, err
}

// Search returns at most one page of matches. A blank keyword yields no
// results without touching the network.
func (r *Resolver) Search(ctx context.Context, keyword string) ([]qqmusic.SearchResult, error) {
	cfg := r.config.QQMusic()
	if !cfg.Enabled {
		return nil, r.searchFailed(newFailure(KindDisabled, nil))
	}
	if strings.TrimSpace(keyword) == "" {
		return []qqmusic.SearchResult{}, nil
	}

	key := strings.Join([]string{keyword, cfg.Cookie, cfg.Referer}, "\x00")
	v, err := shared(ctx, &r.searches, key, config.SearchRequestTimeout, func(ctx context.Context) (any, error) {
		return r.search(ctx, cfg, keyword)
	})
	if nil != err {
		return nil, r.searchFailed(err)
	}

	r.metrics.ObserveSearch("ok")
	return v.([]qqmusic.SearchResult), nil //nolint:forcetypeassert
}

func (r *Resolver) searchFailed(err error) error {
	f, ok := AsFailure(err)
	if !ok {
		f = r.classify(KindSearchFailed, err)
	}
	r.metrics.ObserveSearch(f.Kind.outcome())
	return f
}

func (r *Resolver) search(ctx context.Context, cfg config.QQMusic, keyword string) ([]qqmusic.SearchResult, error) {
	logger := r.logger.With().Str("keyword", keyword).Logger()

	session := qqmusic.NewSession(cfg.Cookie, cfg.Referer, r.rand)
	req, err := session.SearchRequest(keyword)
	if nil != err {
		logger.Debug().Func(log.Flaw(err)).Msg("Failed to compose search request")
		return nil, r.classify(KindSearchFailed, err)
	}

	body, err := r.get(ctx, metrics.EndpointSearch, config.SearchRequestTimeout, req)
	if nil != err {
		logger.Debug().Func(log.Flaw(err)).Msg("Search request failed")
		return nil, r.classify(KindSearchFailed, err)
	}
	logger.Debug().Str("response", log.Truncate(body, searchResponseLogLimit)).Msg("Search response")

	results := qqmusic.ParseSearchResults(body)
	if nil == results {
		results = []qqmusic.SearchResult{}
	}
	return results, nil
}
