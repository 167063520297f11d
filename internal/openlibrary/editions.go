package openlibrary

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// EditionsPage matches /works/{key}/editions.json.
type EditionsPage struct {
	Size    int       `json:"size"`
	Entries []Edition `json:"entries"`
}

// Edition is the subset of an edition record the catalog cares about.
type Edition struct {
	Key    string   `json:"key"`
	Title  string   `json:"title"`
	ISBN13 []string `json:"isbn_13"`
	ISBN10 []string `json:"isbn_10"`
}

// GetEditions fetches up to limit editions of the work identified by key.
func (c *Client) GetEditions(ctx context.Context, key string, limit int) (*EditionsPage, error) {
	if limit <= 0 {
		limit = 5
	}
	workKey := WorkKey(key)
	path := "/works/" + url.PathEscape(workKey) + "/editions.json"
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}

	var page EditionsPage
	if err := c.getJSON(ctx, c.editionsTimeout, path, query, workKey+"/editions", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FirstISBN13 returns the first non-empty ISBN-13 across all entries.
func (p *EditionsPage) FirstISBN13() string {
	if p == nil {
		return ""
	}
	for _, entry := range p.Entries {
		for _, isbn := range entry.ISBN13 {
			if isbn = strings.TrimSpace(isbn); isbn != "" {
				return isbn
			}
		}
	}
	return ""
}
