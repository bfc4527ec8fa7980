package tracker

import (
	"math"
	"sort"
	"strings"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

const (
	// TopLimit bounds the top locations and top drinks lists.
	TopLimit = 3
	// RecentLimit bounds the recent activity feed.
	RecentLimit = 10
)

// TypeCounts holds one counter per category.
type TypeCounts struct {
	Beer     int `json:"beer" yaml:"beer"`
	Wine     int `json:"wine" yaml:"wine"`
	Cocktail int `json:"cocktail" yaml:"cocktail"`
}

// Get returns the counter of c.
func (tc TypeCounts) Get(c schema.Category) int {
	switch c {
	case schema.Beer:
		return tc.Beer
	case schema.Wine:
		return tc.Wine
	case schema.Cocktail:
		return tc.Cocktail
	}
	return 0
}

// Total is the sum of all counters.
func (tc TypeCounts) Total() int {
	return tc.Beer + tc.Wine + tc.Cocktail
}

func (tc *TypeCounts) add(c schema.Category) {
	switch c {
	case schema.Beer:
		tc.Beer++
	case schema.Wine:
		tc.Wine++
	case schema.Cocktail:
		tc.Cocktail++
	}
}

func countTypes(records []schema.Drink) TypeCounts {
	var tc TypeCounts
	for _, d := range records {
		tc.add(d.Type)
	}
	return tc
}

// Ranked is a name with its number of occurrences.
type Ranked struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// TypeShare is one bar of the category distribution.
type TypeShare struct {
	Type  schema.Category `json:"type" yaml:"type"`
	Count int             `json:"count" yaml:"count"`
	Share float64         `json:"share" yaml:"share"` // in [0,1]
}

// PersonalStats are the views derived from one identity's records.
type PersonalStats struct {
	Counts TypeCounts `json:"counts" yaml:"counts"`
	Total  int        `json:"total" yaml:"total"`
	// Favorite is empty when Total is 0.
	Favorite        schema.Category `json:"favorite,omitempty" yaml:"favorite,omitempty"`
	FavoritePercent int             `json:"favoritePercent" yaml:"favoritePercent"`
	TopLocations    []Ranked        `json:"topLocations" yaml:"topLocations"`
	TopDrinks       []Ranked        `json:"topDrinks" yaml:"topDrinks"`
	UniqueDays      int             `json:"uniqueDays" yaml:"uniqueDays"`
	AvgPerDay       float64         `json:"avgPerDay" yaml:"avgPerDay"`
	// Shares is nil when Total is 0.
	Shares []TypeShare `json:"shares,omitempty" yaml:"shares,omitempty"`
}

// ComputePersonal derives the personal views from records, which are expected in
// descending time order.
func ComputePersonal(records []schema.Drink) PersonalStats {
	ps := PersonalStats{
		Counts:       countTypes(records),
		TopLocations: topN(records, func(d schema.Drink) string { return d.Location }, TopLimit),
		TopDrinks:    topN(records, func(d schema.Drink) string { return d.Name }, TopLimit),
	}
	ps.Total = ps.Counts.Total()

	days := make(map[string]struct{})
	for _, d := range records {
		days[d.Date] = struct{}{}
	}
	ps.UniqueDays = len(days)
	if ps.UniqueDays > 0 {
		ps.AvgPerDay = roundTenth(float64(ps.Total) / float64(ps.UniqueDays))
	}

	if ps.Total == 0 {
		return ps
	}

	best := -1
	for _, c := range schema.Categories {
		if n := ps.Counts.Get(c); n > best {
			best = n
			ps.Favorite = c
		}
	}
	ps.FavoritePercent = int(math.Round(float64(best) / float64(ps.Total) * 100))

	ps.Shares = make([]TypeShare, 0, len(schema.Categories))
	for _, c := range schema.Categories {
		n := ps.Counts.Get(c)
		ps.Shares = append(ps.Shares, TypeShare{Type: c, Count: n, Share: float64(n) / float64(ps.Total)})
	}
	return ps
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// topN groups records by key and keeps the n most frequent. Equal counts keep the
// order in which the keys were first seen.
func topN(records []schema.Drink, key func(schema.Drink) string, n int) []Ranked {
	index := make(map[string]int)
	ranked := []Ranked{}
	for _, d := range records {
		k := key(d)
		if i, ok := index[k]; ok {
			ranked[i].Count++
			continue
		}
		index[k] = len(ranked)
		ranked = append(ranked, Ranked{Name: k, Count: 1})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// LeaderboardEntry is one identity's row in the leaderboard.
type LeaderboardEntry struct {
	UserName  string       `json:"userName" yaml:"userName"`
	Total     int          `json:"total" yaml:"total"`
	Counts    TypeCounts   `json:"counts" yaml:"counts"`
	LastDrink schema.Drink `json:"lastDrink" yaml:"lastDrink"`
	IsMe      bool         `json:"isMe" yaml:"isMe"`
}

// Leaderboard ranks every identity in all by number of records. Equal totals are
// ordered by most recent activity, then by name.
func Leaderboard(all []schema.Drink, viewer string) []LeaderboardEntry {
	index := make(map[string]int)
	entries := []LeaderboardEntry{}
	for _, d := range all {
		i, ok := index[d.UserName]
		if !ok {
			i = len(entries)
			index[d.UserName] = i
			entries = append(entries, LeaderboardEntry{
				UserName:  d.UserName,
				LastDrink: d,
				IsMe:      viewer != "" && d.UserName == viewer,
			})
		}
		e := &entries[i]
		e.Counts.add(d.Type)
		e.Total++
		if d.Timestamp.After(e.LastDrink.Timestamp) {
			e.LastDrink = d
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if !a.LastDrink.Timestamp.Equal(b.LastDrink.Timestamp) {
			return a.LastDrink.Timestamp.After(b.LastDrink.Timestamp)
		}
		return a.UserName < b.UserName
	})
	return entries
}

// RecentActivity returns the n most recent records of all, newest first. Records
// with equal timestamps keep their input order.
func RecentActivity(all []schema.Drink, n int) []schema.Drink {
	out := make([]schema.Drink, len(all))
	copy(out, all)
	sortNewestFirst(out)
	if n < 0 {
		n = 0
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func sortNewestFirst(records []schema.Drink) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}

// Dashboard bundles every derived view for one identity.
type Dashboard struct {
	Identity    string             `json:"identity" yaml:"identity"`
	Filter      string             `json:"filter" yaml:"filter"`
	History     []schema.Drink     `json:"history" yaml:"history"`
	Stats       PersonalStats      `json:"stats" yaml:"stats"`
	Leaderboard []LeaderboardEntry `json:"leaderboard" yaml:"leaderboard"`
	Recent      []schema.Drink     `json:"recent" yaml:"recent"`

	// Filled from the mirror by Session.Dashboard.
	Loading bool   `json:"loading" yaml:"loading"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	Version uint64 `json:"version" yaml:"version"`
	Notice  string `json:"notice,omitempty" yaml:"notice,omitempty"`
}

// BuildDashboard recomputes every view from all. Personal stats cover the identity's
// whole history; the category filter only narrows History.
func BuildDashboard(all []schema.Drink, identity, filter string) (Dashboard, error) {
	mine := Partition(all, identity)
	history, err := FilterByCategory(mine, filter)
	if err != nil {
		return Dashboard{}, validationError("dashboard", "type", err)
	}
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		filter = FilterAll
	}
	return Dashboard{
		Identity:    identity,
		Filter:      filter,
		History:     history,
		Stats:       ComputePersonal(mine),
		Leaderboard: Leaderboard(all, identity),
		Recent:      RecentActivity(all, RecentLimit),
	}, nil
}
