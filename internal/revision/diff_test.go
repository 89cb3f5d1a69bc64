package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secutils-dev/scheduler/internal/model"
)

func TestContentChanged_NilLatestIsAlwaysChanged(t *testing.T) {
	assert.True(t, ContentChanged(nil, model.PageContentData("hello")))
}

func TestContentChanged_DetectsEquality(t *testing.T) {
	latest := model.PageContentData("hello")
	assert.False(t, ContentChanged(&latest, model.PageContentData("hello")))
	assert.True(t, ContentChanged(&latest, model.PageContentData("world")))
}

func TestContentDiff_RendersUnifiedDiff(t *testing.T) {
	out, err := ContentDiff("line one\nline two\n", "line one\nline three\n")
	require.NoError(t, err)
	assert.Contains(t, out, "-line two")
	assert.Contains(t, out, "+line three")
}

func TestContentDiff_PrettyPrintsJSON(t *testing.T) {
	out, err := ContentDiff(`{"a":1}`, `{"a":2}`)
	require.NoError(t, err)
	assert.Contains(t, out, "-  \"a\": 1")
	assert.Contains(t, out, "+  \"a\": 2")
}

func TestDiffResources_TagsAddedRemovedChanged(t *testing.T) {
	from := []model.Resource{
		{URL: "a.js", Digest: "d1"},
		{URL: "b.js", Digest: "d2"},
	}
	to := []model.Resource{
		{URL: "a.js", Digest: "d1"},  // unchanged
		{URL: "b.js", Digest: "d3"},  // changed
		{URL: "c.js", Digest: "d4"},  // added
	}

	diffed := DiffResources(from, to)
	byURL := make(map[string]model.Resource, len(diffed))
	for _, r := range diffed {
		byURL[r.URL] = r
	}

	assert.Equal(t, model.DiffStatus(""), byURL["a.js"].DiffStatus)
	assert.Equal(t, model.DiffChanged, byURL["b.js"].DiffStatus)
	assert.Equal(t, model.DiffAdded, byURL["c.js"].DiffStatus)
}

func TestDiffResources_ReportsRemoved(t *testing.T) {
	from := []model.Resource{{URL: "gone.js", Digest: "d1"}}
	to := []model.Resource{}

	diffed := DiffResources(from, to)
	require.Len(t, diffed, 1)
	assert.Equal(t, "gone.js", diffed[0].URL)
	assert.Equal(t, model.DiffRemoved, diffed[0].DiffStatus)
}

func TestResourcesChanged_FalseWhenIdentical(t *testing.T) {
	from := []model.Resource{{URL: "a.js", Digest: "d1"}}
	to := []model.Resource{{URL: "a.js", Digest: "d1"}}
	assert.False(t, ResourcesChanged(from, to))
}

func TestResourcesChanged_TrueOnAnyDifference(t *testing.T) {
	from := []model.Resource{{URL: "a.js", Digest: "d1"}}
	to := []model.Resource{{URL: "a.js", Digest: "d2"}}
	assert.True(t, ResourcesChanged(from, to))
}
