package cli

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/celerix-dev/drinklog/internal/tracker"
	"github.com/celerix-dev/drinklog/pkg/schema"
)

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func when(d schema.Drink, now time.Time) string {
	return schema.DateLabel(d.Date, now) + " " + schema.TimeLabel(d.Time)
}

func percent(share float64) int {
	return int(math.Round(share * 100))
}

// renderHistory writes the identity's filtered history, newest first.
func renderHistory(w io.Writer, d tracker.Dashboard, now time.Time) error {
	fmt.Fprintf(w, "%s's history (%s): %s\n", d.Identity, d.Filter, plural(len(d.History), "drink"))
	if len(d.History) == 0 {
		_, err := fmt.Fprintln(w, "  nothing logged yet")
		return err
	}
	for _, r := range d.History {
		if _, err := fmt.Fprintf(w, "  %-8s  %s @ %s  %s  [%s]\n",
			r.Type.Title(), r.Name, r.Location, when(r, now), r.ID); err != nil {
			return err
		}
	}
	return nil
}

func renderRanked(list []tracker.Ranked) string {
	parts := make([]string, len(list))
	for i, r := range list {
		parts[i] = fmt.Sprintf("%s (%d)", r.Name, r.Count)
	}
	return strings.Join(parts, ", ")
}

// renderStats writes the personal statistics card.
func renderStats(w io.Writer, identity string, s tracker.PersonalStats) error {
	fmt.Fprintf(w, "Stats for %s\n", identity)
	if s.Total == 0 {
		_, err := fmt.Fprintln(w, "No drinks logged yet.")
		return err
	}
	fmt.Fprintf(w, "Total: %d (beer %d, wine %d, cocktail %d)\n",
		s.Total, s.Counts.Beer, s.Counts.Wine, s.Counts.Cocktail)
	fmt.Fprintf(w, "Favorite: %s (%d%%)\n", s.Favorite.Title(), s.FavoritePercent)
	fmt.Fprintf(w, "Active days: %d (%.1f per day)\n", s.UniqueDays, s.AvgPerDay)
	fmt.Fprintf(w, "Top locations: %s\n", renderRanked(s.TopLocations))
	fmt.Fprintf(w, "Top drinks: %s\n", renderRanked(s.TopDrinks))

	shares := make([]string, len(s.Shares))
	for i, sh := range s.Shares {
		shares[i] = fmt.Sprintf("%s %d%%", sh.Type, percent(sh.Share))
	}
	_, err := fmt.Fprintf(w, "Distribution: %s\n", strings.Join(shares, ", "))
	return err
}

// renderLeaderboard writes the ranking of every identity.
func renderLeaderboard(w io.Writer, entries []tracker.LeaderboardEntry, now time.Time) error {
	fmt.Fprintln(w, "Leaderboard")
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "  nobody has logged a drink yet")
		return err
	}
	for i, e := range entries {
		me := ""
		if e.IsMe {
			me = " (you)"
		}
		if _, err := fmt.Fprintf(w, "  %d. %s%s  %s  last: %s @ %s, %s\n",
			i+1, e.UserName, me, plural(e.Total, "drink"),
			e.LastDrink.Name, e.LastDrink.Location, when(e.LastDrink, now)); err != nil {
			return err
		}
	}
	return nil
}

// renderRecent writes the shared activity feed.
func renderRecent(w io.Writer, recent []schema.Drink, now time.Time) error {
	fmt.Fprintln(w, "Recent activity")
	if len(recent) == 0 {
		_, err := fmt.Fprintln(w, "  no activity yet")
		return err
	}
	for _, r := range recent {
		if _, err := fmt.Fprintf(w, "  %s: %s %s @ %s, %s\n",
			r.UserName, r.Type.Title(), r.Name, r.Location, when(r, now)); err != nil {
			return err
		}
	}
	return nil
}

// renderDashboard writes every view, as shown by watch.
func renderDashboard(w io.Writer, d tracker.Dashboard, now time.Time) error {
	switch {
	case d.Error != "":
		fmt.Fprintf(w, "Offline: %s (showing last known data)\n\n", d.Error)
	case d.Loading:
		fmt.Fprint(w, "Loading...\n\n")
	}
	if d.Notice != "" {
		fmt.Fprintf(w, "* %s\n\n", d.Notice)
	}
	steps := []func() error{
		func() error { return renderHistory(w, d, now) },
		func() error { return renderStats(w, d.Identity, d.Stats) },
		func() error { return renderLeaderboard(w, d.Leaderboard, now) },
		func() error { return renderRecent(w, d.Recent, now) },
	}
	for i, step := range steps {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
