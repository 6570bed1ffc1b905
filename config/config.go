package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xeptore/qqres/qqmusic"
)

const defaultServerAddress = ":8080"

type Config struct {
	QQMusic QQMusic `json:"qqmusic" yaml:"qqmusic"`
	Server  Server  `json:"server"  yaml:"server"`
}

type QQMusic struct {
	Enabled          bool   `json:"enabled"           yaml:"enabled"`
	Cookie           string `json:"cookie"            yaml:"cookie"`
	Referer          string `json:"referer"           yaml:"referer"`
	PreferredQuality string `json:"preferred_quality" yaml:"preferred_quality"`
}

func (q QQMusic) Quality() qqmusic.Quality {
	return qqmusic.ParseQuality(q.PreferredQuality)
}

type Server struct {
	Address      string        `json:"address"       yaml:"address"`
	ReadTimeout  time.Duration `json:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
}

func (cfg *Config) validate() error {
	if strings.ContainsAny(cfg.QQMusic.Cookie, "\r\n") {
		return errors.New("qqmusic cookie contains line breaks")
	}

	if referer := cfg.QQMusic.Referer; referer != "" {
		if strings.ContainsAny(referer, "\r\n") {
			return errors.New("qqmusic referer contains line breaks")
		}
		u, err := url.Parse(referer)
		if nil != err {
			return fmt.Errorf("qqmusic referer is not a valid URL: %v", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("qqmusic referer must be an absolute http(s) URL: %q", referer)
		}
	}

	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}

	return nil
}

func FromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %q: %v", filePath, err)
	}

	cfg, err := parse(data)
	if nil != err {
		return nil, fmt.Errorf("failed to load config file %q: %v", filePath, err)
	}
	return cfg, nil
}

func FromString(data string) (*Config, error) {
	return parse([]byte(data))
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}

// Getenv matches os.LookupEnv.
type Getenv func(key string) (string, bool)

// ApplyEnv overrides resolver settings from QQMUSIC_* environment variables
// and validates the result.
func (cfg *Config) ApplyEnv(getenv Getenv) error {
	if v, ok := getenv("QQMUSIC_ENABLED"); ok {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if nil != err {
			return fmt.Errorf("failed to parse QQMUSIC_ENABLED environment variable: %v", err)
		}
		cfg.QQMusic.Enabled = enabled
	}
	if v, ok := getenv("QQMUSIC_COOKIE"); ok {
		cfg.QQMusic.Cookie = v
	}
	if v, ok := getenv("QQMUSIC_REFERER"); ok {
		cfg.QQMusic.Referer = v
	}
	if v, ok := getenv("QQMUSIC_QUALITY"); ok {
		cfg.QQMusic.PreferredQuality = v
	}

	if err := cfg.validate(); nil != err {
		return fmt.Errorf("validation failed after applying environment overrides: %v", err)
	}
	return nil
}

// Source hands out the current resolver configuration. It is safe for
// concurrent use and may be replaced at any time with Store.
type Source struct {
	current atomic.Pointer[Config]
}

func NewSource(cfg *Config) *Source {
	var s Source
	s.current.Store(cfg)
	return &s
}

func (s *Source) Store(cfg *Config) {
	s.current.Store(cfg)
}

func (s *Source) Config() Config {
	return *s.current.Load()
}

func (s *Source) QQMusic() QQMusic {
	return s.current.Load().QQMusic
}
