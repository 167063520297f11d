package openlibrary

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const redirectType = "/type/redirect"

// Work matches the /works/{key}.json document. Loosely-typed fields are kept
// as any because OpenLibrary is inconsistent about their shape.
type Work struct {
	Key              string `json:"key"`
	Title            string `json:"title"`
	Subtitle         string `json:"subtitle"`
	Description      any    `json:"description"`
	Subjects         []any  `json:"subjects"`
	Covers           []any  `json:"covers"`
	FirstPublishDate string `json:"first_publish_date"`
	Type             struct {
		Key string `json:"key"`
	} `json:"type"`
	Location string `json:"location"`
}

// WorkKey strips the "/works/" prefix and ".json" suffix from a key so that
// "OL45804W", "/works/OL45804W" and "/works/OL45804W.json" compare equal.
func WorkKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/works/")
	key = strings.TrimSuffix(key, ".json")
	return key
}

// GetWork fetches the work document for key, following OpenLibrary's
// redirect stubs for merged works. The returned Work.Key is the key of the
// work that was finally served.
func (c *Client) GetWork(ctx context.Context, key string) (*Work, error) {
	current := WorkKey(key)
	for hop := 0; ; hop++ {
		var work Work
		path := "/works/" + url.PathEscape(current) + ".json"
		if err := c.getJSON(ctx, c.workTimeout, path, nil, current, &work); err != nil {
			return nil, err
		}

		if work.Type.Key != redirectType || work.Location == "" {
			if work.Key == "" {
				work.Key = "/works/" + current
			}
			return &work, nil
		}
		if hop >= maxRedirectHops {
			return nil, fmt.Errorf("openlibrary: too many redirects resolving %s", key)
		}

		next := WorkKey(work.Location)
		slog.Debug("Following work redirect", "from", current, "to", next)
		current = next
	}
}

// DescriptionText handles the various forms description can take.
func (w *Work) DescriptionText() string {
	if w == nil || w.Description == nil {
		return ""
	}
	switch v := w.Description.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if val, ok := v["value"].(string); ok {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

// SubjectNames converts the subject list to strings, skipping anything it
// cannot interpret.
func (w *Work) SubjectNames() []string {
	if w == nil {
		return nil
	}
	return extractStringSlice(w.Subjects)
}

// FirstCoverID returns the first positive cover id, or 0. OpenLibrary uses
// -1 as a "no cover" marker inside the list.
func (w *Work) FirstCoverID() int {
	if w == nil {
		return 0
	}
	for _, item := range w.Covers {
		if id := toInt(item); id > 0 {
			return id
		}
	}
	return 0
}

// CoverURL renders the large cover image URL for a cover id.
func CoverURL(coverID int) string {
	return CoverURLSize(coverID, "L")
}

// CoverURLSize renders a cover image URL in one of the S, M or L sizes.
func CoverURLSize(coverID int, size string) string {
	if coverID <= 0 {
		return ""
	}
	return fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-%s.jpg", coverID, size)
}

// extractStringSlice converts []any to []string, handling various element types.
func extractStringSlice(items []any) []string {
	if len(items) == 0 {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				result = append(result, s)
			}
		case map[string]any:
			if name, ok := v["name"].(string); ok && strings.TrimSpace(name) != "" {
				result = append(result, strings.TrimSpace(name))
			}
		}
	}
	return result
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0
		}
		return int(n)
	case int:
		return n
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}
