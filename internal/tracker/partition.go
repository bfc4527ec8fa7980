package tracker

import (
	"strings"

	"github.com/celerix-dev/drinklog/pkg/schema"
)

// FilterAll keeps every category in FilterByCategory.
const FilterAll = "all"

// Partition returns the records owned by identity, in input order. The match is
// exact: no trimming and no case folding. An empty identity owns nothing.
func Partition(all []schema.Drink, identity string) []schema.Drink {
	out := []schema.Drink{}
	if identity == "" {
		return out
	}
	for _, d := range all {
		if d.UserName == identity {
			out = append(out, d)
		}
	}
	return out
}

// FilterByCategory keeps records of the named category. "" and "all" keep
// everything.
func FilterByCategory(records []schema.Drink, filter string) ([]schema.Drink, error) {
	f := strings.ToLower(strings.TrimSpace(filter))
	if f == "" || f == FilterAll {
		out := make([]schema.Drink, len(records))
		copy(out, records)
		return out, nil
	}
	c, err := schema.ParseCategory(f)
	if err != nil {
		return nil, err
	}
	out := []schema.Drink{}
	for _, d := range records {
		if d.Type == c {
			out = append(out, d)
		}
	}
	return out, nil
}
