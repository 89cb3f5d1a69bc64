package revision

import (
	"bytes"
	"encoding/json"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/secutils-dev/scheduler/internal/model"
)

// unifiedDiffContext is a context radius of 10,000 lines: effectively the
// whole document, since no tracked page content runs anywhere near that
// many lines.
const unifiedDiffContext = 10_000

// ContentChanged reports whether new content differs from the latest
// revision by raw string equality; if unchanged, no new revision should
// be appended.
func ContentChanged(latest *model.PageContentData, next model.PageContentData) bool {
	return latest == nil || string(*latest) != string(next)
}

// ContentDiff renders a unified text diff between two PageContent
// revisions. JSON bodies are pretty-printed first so structural changes
// are readable rather than a single long line.
func ContentDiff(from, to model.PageContentData) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(prettyPrint(string(from))),
		B:        difflib.SplitLines(prettyPrint(string(to))),
		FromFile: "previous",
		ToFile:   "current",
		Context:  unifiedDiffContext,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// prettyPrint reformats s as indented JSON when it parses as JSON;
// otherwise it is returned unchanged.
func prettyPrint(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return s
	}
	return buf.String()
}

// resourceKey pairs a Resource's URL and digest. DiffResources does not use
// it: it keys resources by URL alone and compares digests per URL.
type resourceKey struct {
	url    string
	digest string
}

// DiffResources compares two Resource slices and returns `to` with each
// element's DiffStatus set relative to `from`. A resource whose URL is
// absent from `from` is Added; one whose URL is absent from `to` is
// reported as a synthetic Removed entry appended to the result, so callers
// can render it even though it is no longer part of the current revision.
func DiffResources(from, to []model.Resource) []model.Resource {
	prevByURL := make(map[string]model.Resource, len(from))
	for _, r := range from {
		prevByURL[r.URL] = r
	}
	seen := make(map[string]bool, len(to))

	out := make([]model.Resource, len(to))
	for i, r := range to {
		seen[r.URL] = true
		prev, existed := prevByURL[r.URL]
		switch {
		case !existed:
			r.DiffStatus = model.DiffAdded
		case prev.Digest != r.Digest:
			r.DiffStatus = model.DiffChanged
		default:
			r.DiffStatus = ""
		}
		out[i] = r
	}

	for _, r := range from {
		if !seen[r.URL] {
			r.DiffStatus = model.DiffRemoved
			out = append(out, r)
		}
	}
	return out
}

// ResourcesChanged reports whether any resource in `to` differs from the
// preceding revision in `from` under DiffResources: a change is any
// Added/Removed/Changed resource.
func ResourcesChanged(from, to []model.Resource) bool {
	for _, r := range DiffResources(from, to) {
		if r.DiffStatus != "" {
			return true
		}
	}
	return false
}
