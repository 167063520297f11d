package affiliate

import "strings"

// Region is a storefront region code.
type Region string

const (
	RegionUS Region = "US"
	RegionUK Region = "UK"
	RegionIN Region = "IN"
	RegionCA Region = "CA"
	RegionAU Region = "AU"
	RegionDE Region = "DE"
	RegionFR Region = "FR"

	// DefaultRegion is used for empty or unsupported hints.
	DefaultRegion = RegionUS
)

type regionConfig struct {
	amazonDomain string
	koboPath     string
	bookshop     bool
}

var regions = map[Region]regionConfig{
	RegionUS: {amazonDomain: "amazon.com", koboPath: "us/en", bookshop: true},
	RegionUK: {amazonDomain: "amazon.co.uk", koboPath: "gb/en"},
	RegionIN: {amazonDomain: "amazon.in", koboPath: "in/en"},
	RegionCA: {amazonDomain: "amazon.ca", koboPath: "ca/en"},
	RegionAU: {amazonDomain: "amazon.com.au", koboPath: "au/en"},
	RegionDE: {amazonDomain: "amazon.de", koboPath: "de/de"},
	RegionFR: {amazonDomain: "amazon.fr", koboPath: "fr/fr"},
}

// Regions lists the supported regions in a stable order.
func Regions() []Region {
	return []Region{RegionUS, RegionUK, RegionIN, RegionCA, RegionAU, RegionDE, RegionFR}
}

// ParseRegion maps a loose region hint to a supported region. GB is accepted
// for the UK; anything unknown falls back to DefaultRegion.
func ParseRegion(hint string) Region {
	code := Region(strings.ToUpper(strings.TrimSpace(hint)))
	if code == "GB" {
		return RegionUK
	}
	if _, ok := regions[code]; ok {
		return code
	}
	return DefaultRegion
}
