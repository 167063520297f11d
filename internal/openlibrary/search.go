package openlibrary

import (
	"context"
	"net/url"
	"strconv"
)

// SearchQuery describes a /search.json request. Exactly one of Title,
// Author or Subject is normally set.
type SearchQuery struct {
	Title   string
	Author  string
	Subject string
	Page    int
	Limit   int
	Fields  string
}

// SearchResponse matches the /search.json payload.
type SearchResponse struct {
	NumFound int         `json:"numFound"`
	Start    int         `json:"start"`
	Docs     []SearchDoc `json:"docs"`
}

// SearchDoc is a single search hit.
type SearchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	CoverI           int      `json:"cover_i"`
	FirstPublishYear int      `json:"first_publish_year"`
	ISBN             []string `json:"isbn"`
	Subject          []string `json:"subject"`
}

// Search runs a paged search against /search.json.
func (c *Client) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	params := url.Values{}
	if q.Title != "" {
		params.Set("title", q.Title)
	}
	if q.Author != "" {
		params.Set("author", q.Author)
	}
	if q.Subject != "" {
		params.Set("subject", q.Subject)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Fields != "" {
		params.Set("fields", q.Fields)
	}

	var resp SearchResponse
	if err := c.getJSON(ctx, c.searchTimeout, "/search.json", params, "search", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
