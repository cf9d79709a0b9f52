package delta

import (
	"fmt"
	"sort"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/hazel-systems/contactstore/pkg/model"
)

// RenderUnified produces a human-readable unified diff of two detail
// lists, for debug logging in storeChanges' per-contact modification
// pass. It never affects the classification itself.
func RenderUnified(oldDetails, newDetails []model.Detail) string {
	before := renderDetails(oldDetails)
	after := renderDetails(newDetails)
	if before == after {
		return ""
	}
	edits := myers.ComputeEdits(span.URIFromPath("old"), before, after)
	return fmt.Sprint(gotextdiff.ToUnified("old", "new", before, edits))
}

func renderDetails(details []model.Detail) string {
	sorted := make([]model.Detail, len(details))
	copy(sorted, details)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return sorted[i].DetailID < sorted[j].DetailID
	})

	var out string
	for _, d := range sorted {
		out += fmt.Sprintf("%s#%d:\n", d.Type, d.DetailID)
		keys := make([]int, 0, len(d.Fields))
		for k := range d.Fields {
			keys = append(keys, int(k))
		}
		sort.Ints(keys)
		for _, k := range keys {
			out += fmt.Sprintf("  %d = %v\n", k, d.Fields[model.FieldKey(k)])
		}
	}
	return out
}
