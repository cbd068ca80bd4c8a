// Package model defines the Country record shared by the remote source, the
// local store, and the sync orchestrator.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NativeName is a localised name pair inside [Name.NativeName].
type NativeName struct {
	Official string `json:"official"`
	Common   string `json:"common"`
}

// Name holds the display names of a country.
type Name struct {
	Common     string                `json:"common"`
	Official   string                `json:"official"`
	NativeName map[string]NativeName `json:"nativeName"`
}

// Currency is a single entry of the currencies map (keyed by ISO 4217 code).
type Currency struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol,omitempty"`
}

// IDD is the international direct dialing prefix.
type IDD struct {
	Root     string   `json:"root,omitempty"`
	Suffixes []string `json:"suffixes"`
}

// Translation is a translated name pair keyed by language code.
type Translation struct {
	Official string `json:"official"`
	Common   string `json:"common"`
}

// Demonym is a gendered demonym pair keyed by language code.
type Demonym struct {
	F string `json:"f"`
	M string `json:"m"`
}

// Maps holds links to external map services.
type Maps struct {
	GoogleMaps     string `json:"googleMaps"`
	OpenStreetMaps string `json:"openStreetMaps"`
}

// Car holds driving side and international vehicle signs.
type Car struct {
	Signs []string `json:"signs"`
	Side  string   `json:"side"`
}

// Images holds raster/vector image URLs plus alt text. Used for both flags
// and coats of arms; any field may be empty.
type Images struct {
	PNG string `json:"png,omitempty"`
	SVG string `json:"svg,omitempty"`
	Alt string `json:"alt,omitempty"`
}

// CapitalInfo holds the capital's coordinates.
type CapitalInfo struct {
	LatLng []float64 `json:"latlng"`
}

// PostalCode describes the national postal code format.
type PostalCode struct {
	Format string `json:"format"`
	Regex  string `json:"regex,omitempty"`
}

// Country is the canonical in-memory representation of one country's
// reference data. Values are treated as immutable: the only field that
// changes after creation is Favorite, and only through the local store.
type Country struct {
	Name         Name                   `json:"name"`
	TLD          []string               `json:"tld"`
	CCA2         string                 `json:"cca2"`
	CCN3         string                 `json:"ccn3,omitempty"`
	CCA3         string                 `json:"cca3"`
	CIOC         string                 `json:"cioc,omitempty"`
	Independent  *bool                  `json:"independent,omitempty"`
	Status       string                 `json:"status"`
	UNMember     bool                   `json:"unMember"`
	Currencies   map[string]Currency    `json:"currencies"`
	IDD          IDD                    `json:"idd"`
	Capital      []string               `json:"capital"`
	AltSpellings []string               `json:"altSpellings"`
	Region       string                 `json:"region"`
	Subregion    string                 `json:"subregion,omitempty"`
	Languages    map[string]string      `json:"languages"`
	Translations map[string]Translation `json:"translations"`
	LatLng       []float64              `json:"latlng"`
	Landlocked   bool                   `json:"landlocked"`

	// Borders are identity codes of adjacent countries. They are soft
	// references resolved by query; the target may not be stored locally.
	Borders []string `json:"borders"`

	Area        float64            `json:"area"`
	Demonyms    map[string]Demonym `json:"demonyms"`
	Flag        string             `json:"flag"`
	Maps        Maps               `json:"maps"`
	Population  int64              `json:"population"`
	Gini        map[string]float64 `json:"gini"`
	FIFA        string             `json:"fifa,omitempty"`
	Car         Car                `json:"car"`
	Timezones   []string           `json:"timezones"`
	Continents  []string           `json:"continents"`
	Flags       Images             `json:"flags"`
	CoatOfArms  Images             `json:"coatOfArms"`
	StartOfWeek string             `json:"startOfWeek"`
	CapitalInfo CapitalInfo        `json:"capitalInfo"`
	PostalCode  *PostalCode        `json:"postalCode,omitempty"`

	// Favorite is user state kept only in the local store. The remote
	// source never sets it.
	Favorite bool `json:"favorite"`
}

// ID returns the human-facing identity of the record (the common name).
func (c *Country) ID() string { return c.Name.Common }

// Code returns the 3-letter identity code used as the persistence key and as
// the join key for border references.
func (c *Country) Code() string { return c.CCA3 }

// HasBorder reports whether code appears in the record's border list.
func (c *Country) HasBorder(code string) bool {
	for _, b := range c.Borders {
		if b == code {
			return true
		}
	}
	return false
}

// Validate checks the invariants every stored record must satisfy.
func (c *Country) Validate() error {
	if !IsIdentityCode(c.CCA3) {
		return fmt.Errorf("invalid identity code %q", c.CCA3)
	}
	if c.Name.Common == "" {
		return fmt.Errorf("country %s: common name is required", c.CCA3)
	}
	if c.Status == "" {
		return fmt.Errorf("country %s: status is required", c.CCA3)
	}
	if c.Region == "" {
		return fmt.Errorf("country %s: region is required", c.CCA3)
	}
	if c.Flag == "" {
		return fmt.Errorf("country %s: flag is required", c.CCA3)
	}
	return nil
}

// IsIdentityCode reports whether s is a 3-letter alphabetic code.
func IsIdentityCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// Normalize replaces nil list and map fields with empty ones so that absence
// is persisted as an empty collection rather than null.
func (c *Country) Normalize() {
	if c.Name.NativeName == nil {
		c.Name.NativeName = map[string]NativeName{}
	}
	if c.TLD == nil {
		c.TLD = []string{}
	}
	if c.Currencies == nil {
		c.Currencies = map[string]Currency{}
	}
	if c.IDD.Suffixes == nil {
		c.IDD.Suffixes = []string{}
	}
	if c.Capital == nil {
		c.Capital = []string{}
	}
	if c.AltSpellings == nil {
		c.AltSpellings = []string{}
	}
	if c.Languages == nil {
		c.Languages = map[string]string{}
	}
	if c.Translations == nil {
		c.Translations = map[string]Translation{}
	}
	if c.LatLng == nil {
		c.LatLng = []float64{}
	}
	if c.Borders == nil {
		c.Borders = []string{}
	}
	if c.Demonyms == nil {
		c.Demonyms = map[string]Demonym{}
	}
	if c.Gini == nil {
		c.Gini = map[string]float64{}
	}
	if c.Car.Signs == nil {
		c.Car.Signs = []string{}
	}
	if c.Timezones == nil {
		c.Timezones = []string{}
	}
	if c.Continents == nil {
		c.Continents = []string{}
	}
	if c.CapitalInfo.LatLng == nil {
		c.CapitalInfo.LatLng = []float64{}
	}
}

// ContentHash returns a deterministic SHA-256 hex digest of the remote-owned
// fields. Favorite is excluded: it is local state and toggling it must not
// look like a content change.
func (c *Country) ContentHash() string {
	cp := *c
	cp.Favorite = false
	cp.Normalize()
	// encoding/json sorts map keys, so the encoding is stable.
	b, err := json.Marshal(cp)
	if err != nil {
		b = []byte(cp.CCA3)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SortByName orders countries by display name ascending, in place. Equal
// names are ordered by identity code.
func SortByName(countries []Country) {
	sort.SliceStable(countries, func(i, j int) bool {
		if countries[i].Name.Common != countries[j].Name.Common {
			return countries[i].Name.Common < countries[j].Name.Common
		}
		return countries[i].CCA3 < countries[j].CCA3
	})
}

// FormatPopulation renders n with comma thousands separators, e.g. 59030133
// becomes "59,030,133".
func FormatPopulation(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
