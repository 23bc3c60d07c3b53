package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

func TestTagFamily(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		tag      schemas.Tag
		expected schemas.Tag
	}{
		{schemas.FF60, schemas.FF},
		{schemas.FF68, schemas.FF},
		{schemas.IE8, schemas.IE},
		{schemas.IE11, schemas.IE},
		{schemas.CHROME, schemas.CHROME},
		{schemas.FF, schemas.FF},
	}
	for _, tc := range testCases {
		t.Run(string(tc.tag), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.tag.Family())
		})
	}
	assert.True(t, schemas.IE.IsFamily())
	assert.False(t, schemas.IE8.IsFamily())
}

func TestLookupBrowser(t *testing.T) {
	t.Parallel()

	ie8, ok := schemas.LookupBrowser(schemas.IE8)
	require.True(t, ok)
	assert.Equal(t, schemas.IE, ie8.Family)
	assert.True(t, ie8.IsIE())
	assert.True(t, ie8.Features.EventModelAttach)
	assert.False(t, ie8.Features.EventModelW3C)
	assert.Equal(t, 8, ie8.DocumentMode)

	// Family tags resolve to the newest version of the family.
	ff, ok := schemas.LookupBrowser(schemas.FF)
	require.True(t, ok)
	assert.Equal(t, schemas.FF68, ff.Tag)
	assert.True(t, ff.Matches(schemas.FF))
	assert.True(t, ff.Matches(schemas.FF68))
	assert.False(t, ff.Matches(schemas.FF60))

	_, ok = schemas.LookupBrowser("NETSCAPE4")
	assert.False(t, ok)

	assert.Equal(t, schemas.CHROME, schemas.DefaultBrowser.Tag)
}

func TestKnownBrowsersSorted(t *testing.T) {
	t.Parallel()
	all := schemas.KnownBrowsers()
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.Less(t, string(all[i-1].Tag), string(all[i].Tag))
	}
	assert.Contains(t, schemas.KnownTags(), schemas.IE)
}

func TestParseTag(t *testing.T) {
	t.Parallel()
	tag, err := schemas.ParseTag(" ff60 ")
	require.NoError(t, err)
	assert.Equal(t, schemas.FF60, tag)

	tag, err = schemas.ParseTag("default")
	require.NoError(t, err)
	assert.Equal(t, schemas.TagDefault, tag)

	_, err = schemas.ParseTag("opera")
	assert.Error(t, err)
	_, err = schemas.ParseTag("")
	assert.Error(t, err)
}
