package model

import "strings"

// Filter returns the countries whose display name or identity code contains
// query, ignoring case. An empty or whitespace-only query returns countries
// unchanged. Input order is preserved and the input slice is never modified.
func Filter(countries []Country, query string) []Country {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return countries
	}

	result := make([]Country, 0, len(countries))
	for _, c := range countries {
		if strings.Contains(strings.ToLower(c.Name.Common), q) ||
			strings.Contains(strings.ToLower(c.CCA3), q) {
			result = append(result, c)
		}
	}
	return result
}

// FilterFavorites returns only the countries marked as favorite.
func FilterFavorites(countries []Country) []Country {
	var result []Country
	for _, c := range countries {
		if c.Favorite {
			result = append(result, c)
		}
	}
	return result
}
