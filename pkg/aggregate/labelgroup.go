package aggregate

import (
	"sort"
	"strings"
)

// LabelGroupGenerator is the out-of-scope collaborator mirrored from
// original_source/src/extensions/displaylabelgroupgenerator.h: it buckets
// a display label (typically a last name) into a "ribbon group" used for
// sorted contact lists.
type LabelGroupGenerator interface {
	// DisplayLabelGroup returns the bucket a piece of label data falls into.
	DisplayLabelGroup(data string) string
	// DisplayLabelGroups lists every bucket this generator ever produces,
	// in display order.
	DisplayLabelGroups() []string
}

// DefaultLabelGroupGenerator buckets by the uppercased first ASCII letter
// of data, falling back to "#" for input with no leading letter (matching
// Concrete Scenario 4's expectation that empty input lands in its own
// terminal bucket).
type DefaultLabelGroupGenerator struct{}

// DisplayLabelGroup implements LabelGroupGenerator.
func (DefaultLabelGroupGenerator) DisplayLabelGroup(data string) string {
	data = strings.TrimSpace(data)
	if data == "" {
		return "#"
	}
	r := []rune(strings.ToUpper(data))[0]
	if r < 'A' || r > 'Z' {
		return "#"
	}
	return string(r)
}

// DisplayLabelGroups implements LabelGroupGenerator.
func (DefaultLabelGroupGenerator) DisplayLabelGroups() []string {
	groups := make([]string, 0, 27)
	for r := 'A'; r <= 'Z'; r++ {
		groups = append(groups, string(r))
	}
	return append(groups, "#")
}

// LabelGroupEntry pairs a display label with the group gen buckets it into,
// the unit SortByLabelGroup orders (Concrete Scenario 4: "sort by group,
// then by label within a group").
type LabelGroupEntry struct {
	Label string
	Group string
}

// SortByLabelGroup sorts entries ascending by (Group, Label), in place,
// using each entry's Group as given; it does not bucket. Callers populate Group
// themselves (typically from a cached FieldDisplayLabelGroup, or by calling
// gen.DisplayLabelGroup(Label) directly) since bucketing a label is gen's
// job, not this function's.
func SortByLabelGroup(entries []LabelGroupEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Group != entries[j].Group {
			return entries[i].Group < entries[j].Group
		}
		return entries[i].Label < entries[j].Label
	})
}
