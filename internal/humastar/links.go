package humastar

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 Link header values keyed by operation path.
type Links map[string][]string

// AutoLinks walks the OpenAPI paths and derives navigation links:
// item → collection (collection, up), collection → item template (item),
// collection → /health (up), and /health → every collection plus the
// OpenAPI document. Paths tagged with any of skipTags are ignored.
// Call after all routes are registered.
func AutoLinks(api huma.API, skipTags ...string) Links {
	oapi := api.OpenAPI()
	links := Links{}

	var collections, items []string
	for p, pi := range oapi.Paths {
		if slices.ContainsFunc(primaryTags(pi), func(t string) bool { return slices.Contains(skipTags, t) }) {
			continue
		}
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	sort.Strings(collections)
	sort.Strings(items)

	for _, item := range items {
		parent := path.Dir(item)
		if _, ok := oapi.Paths[parent]; ok && !strings.Contains(parent, "{") {
			links.add(item, parent, "collection")
			links.add(item, parent, "up")
		}
	}
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item) == coll {
				links.add(coll, item, "item")
			}
		}
		if coll != "/health" {
			links.add(coll, "/health", "up")
			links.add("/health", coll, lastSegment(coll))
		}
	}
	links.add("/health", "/openapi.json", "describedby")
	links.add("/health", "/openapi.json", "service-desc")
	links.add("/health", "/docs", "service-doc")
	return links
}

func (l Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	if !slices.Contains(l[from], val) {
		l[from] = append(l[from], val)
	}
}

// LinkTransformer returns a Huma Transformer that injects Link headers at
// runtime: the static links for the operation path, a self link for item
// paths, pagination links from Pager bodies, and actions from Actor bodies.
func LinkTransformer(links func() Links) huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		if links != nil {
			for _, link := range links()[op.Path] {
				ctx.AppendHeader("Link", link)
			}
		}

		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}
