// Package targets defines which listing pages a run scrapes for which city.
package targets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/MASanner/findbottomlessmimosas-com/pkg/firecrawl"
)

// Target is one (source URL, city, state) unit of work.
type Target struct {
	URL   string `yaml:"url"`
	City  string `yaml:"city"`
	State string `yaml:"state"`
}

// City is a city and the listing URLs scraped for it.
type City struct {
	City  string   `yaml:"city"`
	State string   `yaml:"state"`
	URLs  []string `yaml:"urls"`
}

// Targets flattens the city's URLs into targets.
func (c City) Targets() []Target {
	out := make([]Target, 0, len(c.URLs))
	for _, u := range c.URLs {
		out = append(out, Target{URL: u, City: c.City, State: c.State})
	}
	return out
}

// Defaults are the approved Florida cities with their Yelp and TripAdvisor
// brunch listings.
var Defaults = []City{
	{City: "Tampa", State: "FL", URLs: []string{
		"https://www.yelp.com/search?find_desc=bottomless+mimosas&find_loc=Tampa%2C+FL",
		"https://www.tripadvisor.com/Restaurants-g34678-zfp10606-Tampa_Florida.html",
	}},
	{City: "Orlando", State: "FL", URLs: []string{
		"https://www.yelp.com/search?find_desc=bottomless+mimosas&find_loc=Orlando%2C+FL",
		"https://www.tripadvisor.com/Restaurants-g34515-zfp10606-Orlando_Florida.html",
	}},
	{City: "Miami", State: "FL", URLs: []string{
		"https://www.yelp.com/search?find_desc=bottomless+mimosas&find_loc=Miami%2C+FL",
		"https://www.tripadvisor.com/Restaurants-g34438-zfp10606-Miami_Florida.html",
	}},
	{City: "St. Petersburg", State: "FL", URLs: []string{
		"https://www.yelp.com/search?find_desc=bottomless+mimosas&find_loc=St.+Petersburg%2C+FL",
		"https://www.tripadvisor.com/Restaurants-g34607-zfp10606-St_Petersburg_Florida.html",
	}},
}

// Load reads a city list from a YAML file of the form
//
//	cities:
//	  - city: Tampa
//	    state: FL
//	    urls: [https://...]
func Load(path string) ([]City, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "targets: read %s", path)
	}

	var file struct {
		Cities []City `yaml:"cities"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "targets: parse")
	}

	for i, c := range file.Cities {
		if strings.TrimSpace(c.City) == "" || strings.TrimSpace(c.State) == "" {
			return nil, eris.Errorf("targets: entry %d needs city and state", i)
		}
		file.Cities[i].State = strings.ToUpper(strings.TrimSpace(c.State))
	}
	return file.Cities, nil
}

// Filter keeps only the named cities (case-insensitive). An empty list keeps all.
func Filter(cities []City, names []string) []City {
	if len(names) == 0 {
		return cities
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var out []City
	for _, c := range cities {
		if want[strings.ToLower(c.City)] {
			out = append(out, c)
		}
	}
	return out
}

// DiscoverQuery is the search query used to find extra listings for a city.
func DiscoverQuery(city, state string) string {
	return fmt.Sprintf("bottomless mimosas brunch %s %s", city, state)
}

// Discover appends up to limit search results per city to its URL list,
// skipping URLs already present. Search failures leave the city unchanged.
func Discover(ctx context.Context, client firecrawl.Client, cities []City, limit int) []City {
	out := make([]City, len(cities))
	for i, c := range cities {
		out[i] = c
		out[i].URLs = append([]string(nil), c.URLs...)

		found, err := firecrawl.SearchURLs(ctx, client, DiscoverQuery(c.City, c.State), limit)
		if err != nil {
			zap.L().Warn("targets: discovery search failed",
				zap.String("city", c.City),
				zap.Error(err),
			)
			continue
		}

		seen := make(map[string]bool, len(out[i].URLs))
		for _, u := range out[i].URLs {
			seen[u] = true
		}
		added := 0
		for _, u := range found {
			if seen[u] {
				continue
			}
			seen[u] = true
			out[i].URLs = append(out[i].URLs, u)
			added++
		}
		zap.L().Info("targets: discovered listing urls",
			zap.String("city", c.City),
			zap.Int("added", added),
		)
	}
	return out
}
