package model

import (
	"encoding/json"
	"testing"
)

func sample(code, name string, borders ...string) Country {
	return Country{
		Name:    Name{Common: name, Official: "Republic of " + name},
		CCA2:    code[:2],
		CCA3:    code,
		Status:  "officially-assigned",
		Region:  "Europe",
		Flag:    "🏳",
		Borders: borders,
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Country)
		wantErr bool
	}{
		{"valid", func(*Country) {}, false},
		{"empty code", func(c *Country) { c.CCA3 = "" }, true},
		{"two letter code", func(c *Country) { c.CCA3 = "IT" }, true},
		{"numeric code", func(c *Country) { c.CCA3 = "380" }, true},
		{"missing common name", func(c *Country) { c.Name.Common = "" }, true},
		{"missing status", func(c *Country) { c.Status = "" }, true},
		{"missing region", func(c *Country) { c.Region = "" }, true},
		{"missing flag", func(c *Country) { c.Flag = "" }, true},
		{"optional subregion absent", func(c *Country) { c.Subregion = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sample("ITA", "Italy")
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsIdentityCode(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ITA", true},
		{"fra", true},
		{"", false},
		{"IT", false},
		{"ITAL", false},
		{"I1A", false},
		{"ÄÖÜ", false},
	}
	for _, tt := range tests {
		if got := IsIdentityCode(tt.in); got != tt.want {
			t.Errorf("IsIdentityCode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// HasBorder / ID / Code
// ---------------------------------------------------------------------------

func TestHasBorder(t *testing.T) {
	c := sample("ITA", "Italy", "FRA", "CHE")
	if !c.HasBorder("FRA") {
		t.Error("HasBorder(FRA) = false, want true")
	}
	if c.HasBorder("DEU") {
		t.Error("HasBorder(DEU) = true, want false")
	}
	if c.ID() != "Italy" {
		t.Errorf("ID() = %q, want %q", c.ID(), "Italy")
	}
	if c.Code() != "ITA" {
		t.Errorf("Code() = %q, want %q", c.Code(), "ITA")
	}
}

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func TestNormalize_EmptyCollectionsNotNull(t *testing.T) {
	c := sample("ITA", "Italy")
	c.Normalize()

	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"tld", "currencies", "capital", "borders", "languages", "translations", "timezones", "continents", "gini"} {
		if string(raw[key]) == "null" {
			t.Errorf("%s encoded as null, want empty collection", key)
		}
	}
}

func TestNormalize_KeepsExistingValues(t *testing.T) {
	c := sample("ITA", "Italy", "FRA")
	c.Normalize()
	if len(c.Borders) != 1 || c.Borders[0] != "FRA" {
		t.Errorf("Borders = %v, want [FRA]", c.Borders)
	}
}

// ---------------------------------------------------------------------------
// ContentHash
// ---------------------------------------------------------------------------

func TestContentHash_Deterministic(t *testing.T) {
	a := sample("ITA", "Italy", "FRA")
	b := sample("ITA", "Italy", "FRA")
	if a.ContentHash() != b.ContentHash() {
		t.Error("identical records produced different hashes")
	}
}

func TestContentHash_IgnoresFavorite(t *testing.T) {
	a := sample("ITA", "Italy")
	b := sample("ITA", "Italy")
	b.Favorite = true
	if a.ContentHash() != b.ContentHash() {
		t.Error("favorite flag changed the content hash")
	}
}

func TestContentHash_ChangesWithContent(t *testing.T) {
	a := sample("ITA", "Italy")
	b := sample("ITA", "Italy")
	b.Population = 59030133
	if a.ContentHash() == b.ContentHash() {
		t.Error("population change did not change the content hash")
	}
}

func TestContentHash_NilAndEmptyEqual(t *testing.T) {
	a := sample("ITA", "Italy")
	b := sample("ITA", "Italy")
	b.Borders = []string{}
	if a.ContentHash() != b.ContentHash() {
		t.Error("nil and empty borders should hash the same")
	}
}

// ---------------------------------------------------------------------------
// SortByName
// ---------------------------------------------------------------------------

func TestSortByName(t *testing.T) {
	countries := []Country{
		sample("ITA", "Italy"),
		sample("AUT", "Austria"),
		sample("FRA", "France"),
	}
	SortByName(countries)

	want := []string{"Austria", "France", "Italy"}
	for i, c := range countries {
		if c.Name.Common != want[i] {
			t.Errorf("countries[%d] = %q, want %q", i, c.Name.Common, want[i])
		}
	}
}

func TestSortByName_EqualNamesByCode(t *testing.T) {
	countries := []Country{
		sample("ZZB", "Same"),
		sample("ZZA", "Same"),
		sample("AAA", "Other"),
	}
	SortByName(countries)

	want := []string{"AAA", "ZZA", "ZZB"}
	for i, c := range countries {
		if c.CCA3 != want[i] {
			t.Errorf("countries[%d] = %s, want %s", i, c.CCA3, want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// FormatPopulation
// ---------------------------------------------------------------------------

func TestFormatPopulation(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{100000, "100,000"},
		{59030133, "59,030,133"},
		{1402112000, "1,402,112,000"},
		{-1234, "-1,234"},
		{-123456, "-123,456"},
	}
	for _, tt := range tests {
		if got := FormatPopulation(tt.in); got != tt.want {
			t.Errorf("FormatPopulation(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
