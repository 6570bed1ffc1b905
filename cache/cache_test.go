package cache_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/qqres/cache"
)

func TestMediaIDsFetch(t *testing.T) {
	t.Parallel()

	c := cache.New()
	defer c.MediaIDs.Stop()

	calls := 0
	fetch := func() (string, error) {
		calls++
		return "003MEDIAMID", nil
	}

	item, err := c.MediaIDs.Fetch("0039MnYb0qxYhV", cache.DefaultMediaIDTTL, fetch)
	require.NoError(t, err)
	assert.Equal(t, "003MEDIAMID", item.Value())

	item, err = c.MediaIDs.Fetch("0039MnYb0qxYhV", cache.DefaultMediaIDTTL, fetch)
	require.NoError(t, err)
	assert.Equal(t, "003MEDIAMID", item.Value())
	assert.Equal(t, 1, calls)

	assert.True(t, c.MediaIDs.Delete("0039MnYb0qxYhV"))
	_, err = c.MediaIDs.Fetch("0039MnYb0qxYhV", cache.DefaultMediaIDTTL, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMediaIDsFetchErrorNotCached(t *testing.T) {
	t.Parallel()

	c := cache.New()
	defer c.MediaIDs.Stop()

	errLookup := errors.New("lookup failed")
	_, err := c.MediaIDs.Fetch("k", time.Minute, func() (string, error) { return "", errLookup })
	require.ErrorIs(t, err, errLookup)

	item, err := c.MediaIDs.Fetch("k", time.Minute, func() (string, error) { return "v", nil })
	require.NoError(t, err)
	assert.Equal(t, "v", item.Value())
}
