package migrator

import "slices"

// Pending returns the migrations from available whose versions aren't in
// applied, preserving the order of available.
func Pending(applied []AppliedRecord, available []*Migration) []*Migration {
	done := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
	}

	pending := make([]*Migration, 0, len(available))
	for _, m := range available {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}

	return pending
}

// SortApplied returns a sorted copy of records, by ascending version, or by
// descending version if desc is true.
func SortApplied(records []AppliedRecord, desc bool) []AppliedRecord {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b AppliedRecord) int {
		if desc {
			return compareVersions(b.Version, a.Version)
		}
		return compareVersions(a.Version, b.Version)
	})

	return sorted
}

// Orphans returns the applied versions that have no migration file, in the
// order of applied.
func Orphans(applied []AppliedRecord, available []*Migration) []string {
	known := make(map[string]struct{}, len(available))
	for _, m := range available {
		known[m.Version] = struct{}{}
	}

	var orphans []string
	for _, a := range applied {
		if _, ok := known[a.Version]; !ok {
			orphans = append(orphans, a.Version)
		}
	}

	return orphans
}
