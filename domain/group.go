package domain

import "sort"

// Group holds the records sharing one calendar date.
type Group struct {
	Date    Date     `json:"date"`
	Records []Record `json:"records"`
}

// GroupByDate partitions records by date. Groups come out in ascending date
// order and keep insertion order inside a group. Records without a valid
// date are left out.
func GroupByDate(records []Record) []Group {
	index := make(map[Date]int)
	groups := make([]Group, 0)
	for _, r := range records {
		if r.Date.IsZero() {
			continue
		}
		i, ok := index[r.Date]
		if !ok {
			i = len(groups)
			index[r.Date] = i
			groups = append(groups, Group{Date: r.Date})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Date.Before(groups[j].Date) })
	return groups
}
