package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/qqres/config"
	"github.com/xeptore/qqres/qqmusic"
)

const sample = `
qqmusic:
  enabled: true
  cookie: "uin=o42; skey=@abc"
  referer: "https://y.qq.com/n/ryqq/player"
  preferred_quality: FLAC
server:
  address: "127.0.0.1:9090"
  read_timeout: 3s
`

func TestFromString(t *testing.T) {
	t.Parallel()

	cfg, err := config.FromString(sample)
	require.NoError(t, err)
	assert.True(t, cfg.QQMusic.Enabled)
	assert.Equal(t, "uin=o42; skey=@abc", cfg.QQMusic.Cookie)
	assert.Equal(t, "https://y.qq.com/n/ryqq/player", cfg.QQMusic.Referer)
	assert.Equal(t, qqmusic.QualityFLAC, cfg.QQMusic.Quality())
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
}

func TestFromStringDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.FromString("qqmusic:\n  enabled: false\n")
	require.NoError(t, err)
	assert.False(t, cfg.QQMusic.Enabled)
	assert.Empty(t, cfg.QQMusic.Cookie)
	assert.Equal(t, qqmusic.QualityAAC128, cfg.QQMusic.Quality())
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestFromStringValidation(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"cookie line break":  "qqmusic:\n  cookie: \"uin=o1\\r\\nX-Injected: 1\"\n",
		"relative referer":   "qqmusic:\n  referer: /player\n",
		"non-http referer":   "qqmusic:\n  referer: ftp://y.qq.com/\n",
		"negative timeout":   "server:\n  read_timeout: -1s\n",
		"invalid yaml":       "qqmusic: [",
		"wrong type enabled": "qqmusic:\n  enabled: sometimes\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := config.FromString(data)
			assert.Error(t, err)
		})
	}
}

func TestFromFile(t *testing.T) {
	t.Parallel()

	filePath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte(sample), 0o600))

	cfg, err := config.FromFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address)

	_, err = config.FromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"QQMUSIC_ENABLED": "true",
		"QQMUSIC_COOKIE":  "uin=o7; skey=x",
		"QQMUSIC_QUALITY": "mp3_320",
	}
	getenv := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := config.FromString("qqmusic:\n  enabled: false\n  referer: https://y.qq.com/\n")
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyEnv(getenv))
	assert.True(t, cfg.QQMusic.Enabled)
	assert.Equal(t, "uin=o7; skey=x", cfg.QQMusic.Cookie)
	assert.Equal(t, "https://y.qq.com/", cfg.QQMusic.Referer)
	assert.Equal(t, qqmusic.QualityMP3320, cfg.QQMusic.Quality())

	env["QQMUSIC_ENABLED"] = "maybe"
	assert.Error(t, cfg.ApplyEnv(getenv))

	env["QQMUSIC_ENABLED"] = "1"
	env["QQMUSIC_COOKIE"] = "a\nb"
	assert.Error(t, cfg.ApplyEnv(getenv))
}

func TestSource(t *testing.T) {
	t.Parallel()

	first, err := config.FromString("qqmusic:\n  enabled: true\n")
	require.NoError(t, err)
	second, err := config.FromString("qqmusic:\n  enabled: false\n")
	require.NoError(t, err)

	src := config.NewSource(first)
	assert.True(t, src.QQMusic().Enabled)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = src.QQMusic()
		}()
	}
	src.Store(second)
	wg.Wait()

	assert.False(t, src.QQMusic().Enabled)
	assert.Equal(t, ":8080", src.Config().Server.Address)
}
