package config

import "strings"

// envKeyReplacer maps nested keys onto environment names: cache.dbfile
// becomes RECTO_CACHE_DBFILE.
var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")
