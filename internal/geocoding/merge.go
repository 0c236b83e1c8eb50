package geocoding

// Merge concatenates the stage outputs and keeps the last record per case
// id, so fallback rows win over primary rows and primary rows win over the
// originals. Kept records stay at their position in the concatenation.
func Merge(original, primary, fallback []Record) []Record {
	all := make([]Record, 0, len(original)+len(primary)+len(fallback))
	all = append(all, original...)
	all = append(all, primary...)
	all = append(all, fallback...)

	last := make(map[string]int, len(all))
	for i, r := range all {
		last[r.CaseID] = i
	}
	out := make([]Record, 0, len(last))
	for i, r := range all {
		if last[r.CaseID] == i {
			out = append(out, r)
		}
	}
	return out
}
