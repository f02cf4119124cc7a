package metrics

import "strings"

// regions maps registry country names onto coarse trial regions for the
// same-region partial proximity score. Coverage follows the countries
// that actually appear in registry location data; anything unmapped
// only ever matches exactly.
var regions = map[string]string{
	"united states": "north america",
	"canada":        "north america",
	"mexico":        "north america",
	"puerto rico":   "north america",

	"united kingdom": "europe",
	"germany":        "europe",
	"france":         "europe",
	"spain":          "europe",
	"italy":          "europe",
	"netherlands":    "europe",
	"belgium":        "europe",
	"switzerland":    "europe",
	"austria":        "europe",
	"poland":         "europe",
	"czechia":        "europe",
	"czech republic": "europe",
	"hungary":        "europe",
	"denmark":        "europe",
	"sweden":         "europe",
	"norway":         "europe",
	"finland":        "europe",
	"ireland":        "europe",
	"portugal":       "europe",
	"greece":         "europe",
	"romania":        "europe",
	"bulgaria":       "europe",
	"ukraine":        "europe",
	"russian federation": "europe",

	"china":              "asia pacific",
	"japan":              "asia pacific",
	"korea, republic of": "asia pacific",
	"taiwan":             "asia pacific",
	"india":              "asia pacific",
	"singapore":          "asia pacific",
	"thailand":           "asia pacific",
	"malaysia":           "asia pacific",
	"viet nam":           "asia pacific",
	"philippines":        "asia pacific",
	"hong kong":          "asia pacific",
	"australia":          "asia pacific",
	"new zealand":        "asia pacific",

	"brazil":    "latin america",
	"argentina": "latin america",
	"chile":     "latin america",
	"colombia":  "latin america",
	"peru":      "latin america",

	"israel":       "middle east africa",
	"turkey":       "middle east africa",
	"egypt":        "middle east africa",
	"south africa": "middle east africa",
	"saudi arabia": "middle east africa",
}

func regionOf(country string) (string, bool) {
	r, ok := regions[strings.ToLower(strings.TrimSpace(country))]
	return r, ok
}
