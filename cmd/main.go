package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/qqres/cache"
	"github.com/xeptore/qqres/config"
	"github.com/xeptore/qqres/constant"
	"github.com/xeptore/qqres/errutil"
	"github.com/xeptore/qqres/httputil"
	"github.com/xeptore/qqres/log"
	"github.com/xeptore/qqres/metrics"
	"github.com/xeptore/qqres/qqmusic/resolver"
	"github.com/xeptore/qqres/ratelimit"
	"github.com/xeptore/qqres/server"
)

const (
	flagConfigFilePath = "config"
	flagLogFormat      = "log-format"
	flagLogLevel       = "log-level"
	flagVerbose        = "verbose"
	flagTitle          = "title"
)

func main() {
	logger := log.NewPretty(os.Stderr).Level(zerolog.InfoLevel)
	if err := godotenv.Load(); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			logger.Trace().Msg(".env file was not found")
		} else {
			logger.Fatal().Err(err).Msg("Failed to load .env file")
		}
	}

	//nolint:exhaustruct
	app := &cli.App{
		Name:     "qqres",
		Version:  constant.Version,
		Compiled: constant.CompileTime,
		Suggest:  true,
		Usage:    "Resolve QQ Music songs to playable URLs",
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:    flagConfigFilePath,
				Aliases: []string{"c"},
				Usage:   "Config file path. The CONFIG environment variable may carry the config instead",
			},
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:  flagLogFormat,
				Value: log.FormatPretty,
				Usage: "Log format: pretty or packed",
			},
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: zerolog.InfoLevel.String(),
				Usage: "Minimum log level",
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:      "resolve",
				Aliases:   []string{"r"},
				Usage:     "Resolve a QQ Music link or song id to a playable URL",
				ArgsUsage: "<uri|id>",
				Action:    resolveCmd,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.StringFlag{Name: flagTitle, Usage: "Title to report instead of the song id"},
					//nolint:exhaustruct
					&cli.BoolFlag{Name: flagVerbose, Aliases: []string{"v"}, Usage: "Print the underlying error trace on failure"},
				},
			},
			//nolint:exhaustruct
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Search QQ Music songs",
				ArgsUsage: "<keyword>",
				Action:    searchCmd,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.BoolFlag{Name: flagVerbose, Aliases: []string{"v"}, Usage: "Print the underlying error trace on failure"},
				},
			},
			//nolint:exhaustruct
			{
				Name:      "match",
				Usage:     "Report how confidently a link refers to a QQ Music song",
				ArgsUsage: "<uri>",
				Action:    matchCmd,
			},
			//nolint:exhaustruct
			{
				Name:      "restore",
				Usage:     "Print the qqmusic: link of a song id",
				ArgsUsage: "<id>",
				Action:    restoreCmd,
			},
			//nolint:exhaustruct
			{
				Name:   "serve",
				Usage:  "Run the HTTP resolver service",
				Action: serveCmd,
			},
		},
	}

	if err := app.Run(os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			return
		}
		if _, ok := resolver.AsFailure(err); ok {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
			logger.Fatal().Func(log.Flaw(flawErr)).Msg("Application exited with flaw")
			return
		}
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
}

func newLogger(cliCtx *cli.Context) (zerolog.Logger, error) {
	format := cliCtx.String(flagLogFormat)
	if format != log.FormatPretty && format != log.FormatPacked {
		return zerolog.Nop(), fmt.Errorf("unsupported log format %q", format)
	}
	level, err := zerolog.ParseLevel(cliCtx.String(flagLogLevel))
	if nil != err {
		return zerolog.Nop(), fmt.Errorf("failed to parse log level: %v", err)
	}
	return log.New(os.Stderr, format).Level(level), nil
}

// loadConfig reads the config file or the CONFIG environment variable, then
// applies QQMUSIC_* overrides. With neither set, defaults plus overrides are
// used.
func loadConfig(cliCtx *cli.Context, logger zerolog.Logger) (*config.Config, error) {
	var (
		cfgEnv      = os.Getenv("CONFIG")
		cfgFilePath = cliCtx.String(flagConfigFilePath)
		cfg         *config.Config
		err         error
	)
	switch {
	case cfgFilePath != "" && cfgEnv != "":
		return nil, errors.New("config file path and config environment variable are both set. specify only one")
	case cfgFilePath != "":
		logger.Debug().Str("config_file_path", cfgFilePath).Msg("Loading config from file")
		cfg, err = config.FromFile(cfgFilePath)
		if nil != err {
			return nil, fmt.Errorf("failed to load config file: %v", err)
		}
	case cfgEnv != "":
		logger.Debug().Msg("Loading config from environment variable")
		cfg, err = config.FromString(cfgEnv)
		if nil != err {
			return nil, fmt.Errorf("failed to load config from environment variable: %v", err)
		}
	default:
		logger.Debug().Msg("No config given. Using defaults and QQMUSIC_* environment variables")
		cfg, err = config.FromString("")
		if nil != err {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); nil != err {
		return nil, err
	}
	return cfg, nil
}

type app struct {
	logger   zerolog.Logger
	source   *config.Source
	registry *prometheus.Registry
	cache    *cache.Cache
	resolver *resolver.Resolver
}

func setup(cliCtx *cli.Context) (*app, error) {
	logger, err := newLogger(cliCtx)
	if nil != err {
		return nil, err
	}
	cfg, err := loadConfig(cliCtx, logger)
	if nil != err {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})) //nolint:exhaustruct

	src := config.NewSource(cfg)
	c := cache.New()
	client := httputil.NewClient(nil, ratelimit.New(ratelimit.MaxConcurrentRequests))
	r := resolver.New(src, client, c, metrics.New(reg), nil, logger.With().Str("module", "resolver").Logger())

	return &app{
		logger:   logger,
		source:   src,
		registry: reg,
		cache:    c,
		resolver: r,
	}, nil
}

func (a *app) close() {
	a.cache.MediaIDs.Stop()
}

func singleArg(cliCtx *cli.Context, name string) (string, error) {
	if cliCtx.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s argument, got %d", name, cliCtx.NArg())
	}
	return cliCtx.Args().First(), nil
}

// printTrace writes the flaw behind a resolver failure as YAML.
func printTrace(w io.Writer, err error) {
	f, ok := resolver.AsFailure(err)
	if !ok || nil == f.Unwrap() {
		return
	}
	flawErr := new(flaw.Flaw)
	if !errors.As(f.Unwrap(), &flawErr) {
		fmt.Fprintf(w, "cause: %v\n", f.Unwrap())
		return
	}
	b, yamlErr := errutil.FlawToYAML(flawErr)
	if nil != yamlErr {
		fmt.Fprintf(w, "cause: %v\n", f.Unwrap())
		return
	}
	_, _ = w.Write(b)
}

func resolveCmd(cliCtx *cli.Context) error {
	input, err := singleArg(cliCtx, "uri or id")
	if nil != err {
		return err
	}

	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(cliCtx)
	if nil != err {
		return err
	}
	defer a.close()

	resolution, err := a.resolver.ResolveFromURI(ctx, input)
	if title := cliCtx.String(flagTitle); nil == err && title != "" {
		resolution.Title = title
	}
	if nil != err {
		if cliCtx.Bool(flagVerbose) {
			printTrace(cliCtx.App.ErrWriter, err)
		}
		return err
	}

	fmt.Fprintf(cliCtx.App.Writer, "%s\t%s\n", resolution.URL, resolution.Title)
	return nil
}

func searchCmd(cliCtx *cli.Context) error {
	keyword := strings.Join(cliCtx.Args().Slice(), " ")

	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(cliCtx)
	if nil != err {
		return err
	}
	defer a.close()

	results, err := a.resolver.Search(ctx, keyword)
	if nil != err {
		if cliCtx.Bool(flagVerbose) {
			printTrace(cliCtx.App.ErrWriter, err)
		}
		return err
	}
	for _, v := range results {
		fmt.Fprintf(cliCtx.App.Writer, "%s\t%s\n", v.SongMID, v.Title)
	}
	return nil
}

func matchCmd(cliCtx *cli.Context) error {
	uri, err := singleArg(cliCtx, "uri")
	if nil != err {
		return err
	}

	a, err := setup(cliCtx)
	if nil != err {
		return err
	}
	defer a.close()

	fmt.Fprintln(cliCtx.App.Writer, a.resolver.Match(uri).String())
	return nil
}

func restoreCmd(cliCtx *cli.Context) error {
	id, err := singleArg(cliCtx, "id")
	if nil != err {
		return err
	}

	a, err := setup(cliCtx)
	if nil != err {
		return err
	}
	defer a.close()

	fmt.Fprintln(cliCtx.App.Writer, a.resolver.RestoreLink(id))
	return nil
}

func serveCmd(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(cliCtx)
	if nil != err {
		return err
	}
	defer a.close()

	go a.reloadOnHangup(ctx, cliCtx)

	cfg := a.source.Config()
	srv := server.New(cfg.Server, a.resolver, a.registry, a.logger.With().Str("module", "server").Logger())
	return srv.Run(ctx)
}

// reloadOnHangup swaps in a freshly loaded config on every SIGHUP. Server
// settings only take effect on restart.
func (a *app) reloadOnHangup(ctx context.Context, cliCtx *cli.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := loadConfig(cliCtx, a.logger)
			if nil != err {
				a.logger.Error().Err(err).Msg("Failed to reload config. Keeping the current one")
				continue
			}
			a.source.Store(cfg)
			a.logger.Info().Bool("enabled", cfg.QQMusic.Enabled).Str("quality", string(cfg.QQMusic.Quality())).Msg("Config reloaded")
		}
	}
}
