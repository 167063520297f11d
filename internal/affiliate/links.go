// Package affiliate projects a canonical record onto retailer and
// free-access links for a storefront region.
package affiliate

import (
	"net/url"
	"strings"

	"github.com/lepinkainen/recto/internal/catalog"
)

const (
	CategoryAffiliate = "affiliate"
	CategoryFree      = "free"
)

// Platform identifiers, also used as affiliate id config keys.
const (
	PlatformAmazon      = "amazon"
	PlatformKobo        = "kobo"
	PlatformBookshop    = "bookshop"
	PlatformGutenberg   = "gutenberg"
	PlatformOpenLibrary = "openlibrary"
)

// Link is a single retailer or library link.
type Link struct {
	Retailer string `json:"retailer" yaml:"retailer"`
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
}

// Links groups links by category.
type Links map[string][]Link

// IDSource resolves affiliate identifiers. An empty string means none is
// configured and the link is emitted without one.
type IDSource interface {
	AffiliateID(platform string, region Region) string
}

// Project builds the links for rec in the region named by regionHint. It does
// no I/O; the output depends only on rec, the hint and ids.
func Project(rec *catalog.Record, regionHint string, ids IDSource) Links {
	links := Links{CategoryAffiliate: {}, CategoryFree: {}}
	if rec == nil {
		return links
	}

	region := ParseRegion(regionHint)
	cfg := regions[region]
	title := strings.TrimSpace(rec.Title)

	id := func(platform string) string {
		if ids == nil {
			return ""
		}
		return ids.AffiliateID(platform, region)
	}

	amazon := url.Values{"k": {title}}
	if tag := id(PlatformAmazon); tag != "" {
		amazon.Set("tag", tag)
	}
	links[CategoryAffiliate] = append(links[CategoryAffiliate], Link{
		Retailer: PlatformAmazon,
		Name:     "Amazon",
		URL:      "https://www." + cfg.amazonDomain + "/s?" + amazon.Encode(),
	})

	kobo := url.Values{"query": {title}}
	if affID := id(PlatformKobo); affID != "" {
		kobo.Set("affid", affID)
	}
	links[CategoryAffiliate] = append(links[CategoryAffiliate], Link{
		Retailer: PlatformKobo,
		Name:     "Kobo",
		URL:      "https://www.kobo.com/" + cfg.koboPath + "/search?" + kobo.Encode(),
	})

	if cfg.bookshop {
		bookshop := url.Values{"q": {title}}
		if aff := id(PlatformBookshop); aff != "" {
			bookshop.Set("aff", aff)
		}
		links[CategoryAffiliate] = append(links[CategoryAffiliate], Link{
			Retailer: PlatformBookshop,
			Name:     "Bookshop.org",
			URL:      "https://bookshop.org/search?" + bookshop.Encode(),
		})
	}

	if rec.PrimaryKey != "" {
		links[CategoryFree] = append(links[CategoryFree], Link{
			Retailer: PlatformOpenLibrary,
			Name:     "Open Library",
			URL:      "https://openlibrary.org/works/" + url.PathEscape(rec.PrimaryKey),
		})
	}
	links[CategoryFree] = append(links[CategoryFree], Link{
		Retailer: PlatformGutenberg,
		Name:     "Project Gutenberg",
		URL:      "https://www.gutenberg.org/ebooks/search/?" + url.Values{"query": {title}}.Encode(),
	})

	return links
}
