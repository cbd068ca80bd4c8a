package restcountries

import (
	"fmt"

	"github.com/njoerd114/countrysync/internal/model"
)

// The wire structs mirror the upstream JSON. Required scalar keys are pointers
// and required collections are checked for nil so that an absent key can be
// told apart from a zero value. json.Unmarshal allocates an empty slice or map
// for "[]" and "{}", so nil always means absent or null.

type wireNativeName struct {
	Official *string `json:"official"`
	Common   *string `json:"common"`
}

type wireName struct {
	Common     *string                   `json:"common"`
	Official   *string                   `json:"official"`
	NativeName map[string]wireNativeName `json:"nativeName"`
}

type wireCurrency struct {
	Name   *string `json:"name"`
	Symbol *string `json:"symbol"`
}

type wireIDD struct {
	Root     *string  `json:"root"`
	Suffixes []string `json:"suffixes"`
}

type wireDemonym struct {
	F *string `json:"f"`
	M *string `json:"m"`
}

type wireMaps struct {
	GoogleMaps     *string `json:"googleMaps"`
	OpenStreetMaps *string `json:"openStreetMaps"`
}

type wireCar struct {
	Signs []string `json:"signs"`
	Side  *string  `json:"side"`
}

type wireImages struct {
	PNG *string `json:"png"`
	SVG *string `json:"svg"`
	Alt *string `json:"alt"`
}

type wireCapitalInfo struct {
	LatLng []float64 `json:"latlng"`
}

type wirePostalCode struct {
	Format *string `json:"format"`
	Regex  *string `json:"regex"`
}

type wireCountry struct {
	Name         *wireName                 `json:"name"`
	TLD          []string                  `json:"tld"`
	CCA2         *string                   `json:"cca2"`
	CCN3         *string                   `json:"ccn3"`
	CCA3         *string                   `json:"cca3"`
	CIOC         *string                   `json:"cioc"`
	Independent  *bool                     `json:"independent"`
	Status       *string                   `json:"status"`
	UNMember     *bool                     `json:"unMember"`
	Currencies   map[string]wireCurrency   `json:"currencies"`
	IDD          *wireIDD                  `json:"idd"`
	Capital      []string                  `json:"capital"`
	AltSpellings []string                  `json:"altSpellings"`
	Region       *string                   `json:"region"`
	Subregion    *string                   `json:"subregion"`
	Languages    map[string]string         `json:"languages"`
	Translations map[string]wireNativeName `json:"translations"`
	LatLng       []float64                 `json:"latlng"`
	Landlocked   *bool                     `json:"landlocked"`
	Borders      []string                  `json:"borders"`
	Area         *float64                  `json:"area"`
	Demonyms     map[string]wireDemonym    `json:"demonyms"`
	Flag         *string                   `json:"flag"`
	Maps         *wireMaps                 `json:"maps"`
	Population   *int64                    `json:"population"`
	Gini         map[string]float64        `json:"gini"`
	FIFA         *string                   `json:"fifa"`
	Car          *wireCar                  `json:"car"`
	Timezones    []string                  `json:"timezones"`
	Continents   []string                  `json:"continents"`
	Flags        *wireImages               `json:"flags"`
	CoatOfArms   *wireImages               `json:"coatOfArms"`
	StartOfWeek  *string                   `json:"startOfWeek"`
	CapitalInfo  *wireCapitalInfo          `json:"capitalInfo"`
	PostalCode   *wirePostalCode           `json:"postalCode"`
}

// required records the first missing key while converting a record.
type required struct {
	missing string
}

func (r *required) str(key string, v *string) string {
	if v == nil {
		r.fail(key)
		return ""
	}
	return *v
}

func (r *required) boolean(key string, v *bool) bool {
	if v == nil {
		r.fail(key)
		return false
	}
	return *v
}

func (r *required) present(key string, isNil bool) {
	if isNil {
		r.fail(key)
	}
}

func (r *required) fail(key string) {
	if r.missing == "" {
		r.missing = key
	}
}

// opt dereferences an optional string.
func opt(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// toModel converts a decoded wire record into a [model.Country]. It returns
// the name of the first missing required key, or "" on success. The result
// always has Favorite=false and normalised empty collections.
func (w *wireCountry) toModel() (model.Country, string) {
	var r required
	var c model.Country

	if w.Name == nil {
		r.fail("name")
	} else {
		c.Name.Common = r.str("name.common", w.Name.Common)
		c.Name.Official = r.str("name.official", w.Name.Official)
		if w.Name.NativeName != nil {
			c.Name.NativeName = make(map[string]model.NativeName, len(w.Name.NativeName))
			for lang, n := range w.Name.NativeName {
				c.Name.NativeName[lang] = model.NativeName{
					Official: r.str("name.nativeName."+lang+".official", n.Official),
					Common:   r.str("name.nativeName."+lang+".common", n.Common),
				}
			}
		}
	}

	c.TLD = w.TLD
	c.CCA2 = r.str("cca2", w.CCA2)
	c.CCN3 = opt(w.CCN3)
	c.CCA3 = r.str("cca3", w.CCA3)
	c.CIOC = opt(w.CIOC)
	c.Independent = w.Independent
	c.Status = r.str("status", w.Status)
	c.UNMember = r.boolean("unMember", w.UNMember)

	if w.Currencies != nil {
		c.Currencies = make(map[string]model.Currency, len(w.Currencies))
		for code, cur := range w.Currencies {
			c.Currencies[code] = model.Currency{
				Name:   r.str("currencies."+code+".name", cur.Name),
				Symbol: opt(cur.Symbol),
			}
		}
	}

	if w.IDD == nil {
		r.fail("idd")
	} else {
		c.IDD = model.IDD{Root: opt(w.IDD.Root), Suffixes: w.IDD.Suffixes}
	}

	c.Capital = w.Capital
	r.present("altSpellings", w.AltSpellings == nil)
	c.AltSpellings = w.AltSpellings
	c.Region = r.str("region", w.Region)
	c.Subregion = opt(w.Subregion)
	c.Languages = w.Languages

	r.present("translations", w.Translations == nil)
	if w.Translations != nil {
		c.Translations = make(map[string]model.Translation, len(w.Translations))
		for lang, tr := range w.Translations {
			c.Translations[lang] = model.Translation{
				Official: r.str("translations."+lang+".official", tr.Official),
				Common:   r.str("translations."+lang+".common", tr.Common),
			}
		}
	}

	r.present("latlng", w.LatLng == nil)
	c.LatLng = w.LatLng
	c.Landlocked = r.boolean("landlocked", w.Landlocked)
	c.Borders = w.Borders

	if w.Area == nil {
		r.fail("area")
	} else {
		c.Area = *w.Area
	}

	if w.Demonyms != nil {
		c.Demonyms = make(map[string]model.Demonym, len(w.Demonyms))
		for lang, d := range w.Demonyms {
			c.Demonyms[lang] = model.Demonym{
				F: r.str("demonyms."+lang+".f", d.F),
				M: r.str("demonyms."+lang+".m", d.M),
			}
		}
	}

	c.Flag = r.str("flag", w.Flag)

	if w.Maps == nil {
		r.fail("maps")
	} else {
		c.Maps = model.Maps{
			GoogleMaps:     r.str("maps.googleMaps", w.Maps.GoogleMaps),
			OpenStreetMaps: r.str("maps.openStreetMaps", w.Maps.OpenStreetMaps),
		}
	}

	if w.Population == nil {
		r.fail("population")
	} else {
		c.Population = *w.Population
	}

	c.Gini = w.Gini
	c.FIFA = opt(w.FIFA)

	if w.Car == nil {
		r.fail("car")
	} else {
		c.Car = model.Car{Signs: w.Car.Signs, Side: r.str("car.side", w.Car.Side)}
	}

	r.present("timezones", w.Timezones == nil)
	c.Timezones = w.Timezones
	r.present("continents", w.Continents == nil)
	c.Continents = w.Continents

	if w.Flags == nil {
		r.fail("flags")
	} else {
		c.Flags = toImages(w.Flags)
	}
	if w.CoatOfArms == nil {
		r.fail("coatOfArms")
	} else {
		c.CoatOfArms = toImages(w.CoatOfArms)
	}

	c.StartOfWeek = r.str("startOfWeek", w.StartOfWeek)

	if w.CapitalInfo == nil {
		r.fail("capitalInfo")
	} else {
		c.CapitalInfo = model.CapitalInfo{LatLng: w.CapitalInfo.LatLng}
	}

	if w.PostalCode != nil {
		c.PostalCode = &model.PostalCode{
			Format: r.str("postalCode.format", w.PostalCode.Format),
			Regex:  opt(w.PostalCode.Regex),
		}
	}

	c.Normalize()
	return c, r.missing
}

func toImages(w *wireImages) model.Images {
	return model.Images{PNG: opt(w.PNG), SVG: opt(w.SVG), Alt: opt(w.Alt)}
}

// convertAll converts every wire record, failing on the first record that
// lacks a required key.
func convertAll(records []wireCountry) ([]model.Country, error) {
	countries := make([]model.Country, 0, len(records))
	for i := range records {
		c, missing := records[i].toModel()
		if missing != "" {
			ref := c.CCA3
			if ref == "" {
				ref = c.Name.Common
			}
			return nil, fmt.Errorf("%w: record %d (%q): missing required key %q", ErrDecode, i, ref, missing)
		}
		countries = append(countries, c)
	}
	return countries, nil
}
