package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/njoerd114/countrysync/internal/model"
)

// printList writes one line per country: flag, name, code, region, population.
func printList(w io.Writer, countries []model.Country) error {
	if len(countries) == 0 {
		_, err := fmt.Fprintln(w, "No countries match.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tNAME\tCODE\tREGION\tPOPULATION\t")
	for _, c := range countries {
		star := " "
		if c.Favorite {
			star = "★"
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\t%s\t\n",
			star, c.Flag, c.Name.Common, c.CCA3, c.Region, model.FormatPopulation(c.Population))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d countries\n", len(countries))
	return err
}

// printDetail writes the detail view of one country and its stored neighbors.
func printDetail(w io.Writer, c model.Country, neighbors []model.Country) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	title := c.Flag + " " + c.Name.Common
	if c.Favorite {
		title += " ★"
	}
	fmt.Fprintln(tw, title)
	fmt.Fprintln(tw, strings.Repeat("─", len([]rune(title))))

	row := func(label, value string) {
		if value == "" {
			return
		}
		if label != "" {
			label += ":"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", label, value)
	}
	row("Official name", c.Name.Official)
	row("Codes", strings.Join(nonEmpty(c.CCA3, c.CCA2, c.CCN3), " / "))
	row("Capital", strings.Join(c.Capital, ", "))
	row("Region", strings.Join(nonEmpty(c.Region, c.Subregion), " / "))
	row("Population", model.FormatPopulation(c.Population))
	row("Area", fmt.Sprintf("%s km²", model.FormatPopulation(int64(c.Area))))
	row("Languages", strings.Join(sortedValues(c.Languages), ", "))
	row("Currencies", strings.Join(currencies(c.Currencies), ", "))
	row("Timezones", strings.Join(c.Timezones, ", "))
	row("Driving side", c.Car.Side)
	row("Map", c.Maps.OpenStreetMaps)

	if len(c.Borders) == 0 {
		row("Neighbors", "none")
	} else {
		names := make([]string, len(neighbors))
		for i, n := range neighbors {
			names[i] = n.Flag + " " + n.Name.Common
		}
		if len(names) == 0 {
			names = append(names, "none stored")
		}
		row("Neighbors", strings.Join(names, ", "))
		if missing := len(c.Borders) - len(neighbors); missing > 0 {
			row("", fmt.Sprintf("(%d border code(s) not in the local database)", missing))
		}
	}

	return tw.Flush()
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func sortedValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func currencies(m map[string]model.Currency) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]string, len(codes))
	for i, code := range codes {
		cur := m[code]
		s := fmt.Sprintf("%s (%s", cur.Name, code)
		if cur.Symbol != "" {
			s += ", " + cur.Symbol
		}
		out[i] = s + ")"
	}
	return out
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
