package affiliate

import (
	"strings"

	"github.com/spf13/viper"
)

// ViperIDSource reads affiliate ids from affiliate.<platform>.<region> and
// falls back to affiliate.<platform>.default.
type ViperIDSource struct {
	v *viper.Viper
}

// NewViperIDSource wraps v, or the global viper instance when v is nil.
func NewViperIDSource(v *viper.Viper) *ViperIDSource {
	if v == nil {
		v = viper.GetViper()
	}
	return &ViperIDSource{v: v}
}

// AffiliateID implements IDSource.
func (s *ViperIDSource) AffiliateID(platform string, region Region) string {
	platform = strings.ToLower(platform)
	if id := strings.TrimSpace(s.v.GetString(ConfigKey(platform, string(region)))); id != "" {
		return id
	}
	return strings.TrimSpace(s.v.GetString(ConfigKey(platform, "default")))
}

// ConfigKey is the viper key holding the id for platform in region.
func ConfigKey(platform, region string) string {
	return "affiliate." + strings.ToLower(platform) + "." + strings.ToLower(region)
}

// EnvName is the environment variable conventionally holding the id, e.g.
// AMAZON_AFFILIATE_ID_US. An empty region gives the region-less fallback.
func EnvName(platform, region string) string {
	name := strings.ToUpper(platform) + "_AFFILIATE_ID"
	if region != "" {
		name += "_" + strings.ToUpper(region)
	}
	return name
}

// AffiliatePlatforms are the platforms that accept an affiliate id.
func AffiliatePlatforms() []string {
	return []string{PlatformAmazon, PlatformKobo, PlatformBookshop}
}
