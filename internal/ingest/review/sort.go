package review

import "sort"

func sortByEnqueuedAt(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})
}
