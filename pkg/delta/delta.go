// Package delta implements the Detail-Delta Engine: a pure function that
// diffs two lists of details into additions, modifications and deletions.
package delta

import (
	"net/url"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/hazel-systems/contactstore/pkg/model"
)

// Options configures a Diff call. The zero value uses no ignore lists.
type Options struct {
	IgnoreTypes        map[model.DetailType]struct{}
	IgnoreCommonFields map[model.FieldKey]struct{}
	IgnoreDetailFields map[model.FieldKey]struct{}
}

// DefaultOptions returns the ignore lists spec.md 4.C names as defaults.
func DefaultOptions() Options {
	return Options{
		IgnoreTypes: map[model.DetailType]struct{}{
			model.TypeDeactivated: {},
			model.TypeStatusFlags: {},
		},
		IgnoreCommonFields: map[model.FieldKey]struct{}{
			model.FieldProvenance:    {},
			model.FieldModifiable:    {},
			model.FieldNonexportable: {},
			model.FieldChangeFlags:   {},
			model.FieldDatabaseID:    {},
		},
		IgnoreDetailFields: map[model.FieldKey]struct{}{
			model.FieldPhoneNumberNormalized: {},
		},
	}
}

// Result is the classified output of Diff.
type Result struct {
	Additions     []model.Detail
	Modifications []model.Detail
	Deletions     []model.Detail
}

// transferredFields are copied from the matched old detail onto the
// surviving new one when new lacks them, per spec.md 4.C step 3 (and the resolved Open
// Question about constructModification's field transfer: each is
// transferred independently when missing from new, never gated behind a
// combined AND of all four).
var transferredFields = []model.FieldKey{
	model.FieldModifiable,
	model.FieldProvenance,
	model.FieldDetailURI,
	model.FieldLinkedDetailURIs,
}

// Diff classifies oldDetails vs newDetails into additions, modifications
// and deletions, per spec.md 4.C's five-step algorithm.
func Diff(oldDetails, newDetails []model.Detail, opts Options) Result {
	old := stripIgnoredTypes(oldDetails, opts.IgnoreTypes)
	next := stripIgnoredTypes(newDetails, opts.IgnoreTypes)

	old, next = stripExactMatches(old, next)

	var result Result
	old, next = matchByDatabaseID(old, next, &result)

	buckets := bucketByType(old, next)
	for _, typ := range buckets.order {
		b := buckets.m[typ]
		pairLowestScoreFirst(b.removals, b.additions, opts, &result)
	}

	for i := range result.Additions {
		result.Additions[i] = result.Additions[i].WithField(model.FieldDatabaseID, int32(0))
	}

	return result
}

func stripIgnoredTypes(details []model.Detail, ignore map[model.DetailType]struct{}) []model.Detail {
	out := make([]model.Detail, 0, len(details))
	for _, d := range details {
		if _, skip := ignore[d.Type]; skip {
			continue
		}
		out = append(out, d)
	}
	return out
}

// stripExactMatches removes pairwise-exact matches from both sides,
// tolerating: empty-string ≡ missing, empty ordered-int-sequence ≡
// missing, and URL ≡ string-form of URL.
func stripExactMatches(old, next []model.Detail) ([]model.Detail, []model.Detail) {
	usedNext := make([]bool, len(next))
	var remainingOld []model.Detail

	for _, o := range old {
		matched := false
		for j, n := range next {
			if usedNext[j] {
				continue
			}
			if detailsExactlyEqual(o, n) {
				usedNext[j] = true
				matched = true
				break
			}
		}
		if !matched {
			remainingOld = append(remainingOld, o)
		}
	}

	var remainingNext []model.Detail
	for j, n := range next {
		if !usedNext[j] {
			remainingNext = append(remainingNext, n)
		}
	}
	return remainingOld, remainingNext
}

func detailsExactlyEqual(a, b model.Detail) bool {
	if a.Type != b.Type {
		return false
	}
	keys := make(map[model.FieldKey]struct{}, len(a.Fields)+len(b.Fields))
	for k := range a.Fields {
		keys[k] = struct{}{}
	}
	for k := range b.Fields {
		keys[k] = struct{}{}
	}
	for k := range keys {
		if !fieldValuesEqual(a.Fields[k], b.Fields[k]) {
			return false
		}
	}
	return true
}

func fieldValuesEqual(a, b any) bool {
	na, nb := normalizeFieldValue(a), normalizeFieldValue(b)
	return cmp.Equal(na, nb, cmpopts.EquateEmpty())
}

// normalizeFieldValue applies the three equality tolerances from spec.md
// 4.C step 2: a nil value is treated the same as an empty string/slice,
// and any url.URL is compared by its string form.
func normalizeFieldValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case *url.URL:
		if t == nil {
			return ""
		}
		return t.String()
	case url.URL:
		return t.String()
	default:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice && rv.Len() == 0 {
			return ""
		}
		return v
	}
}

// matchByDatabaseID pairs remaining old/new details sharing an equal,
// non-zero DatabaseID and type as direct modifications (spec.md 4.C step
// 3), transferring transferredFields and DatabaseID from old onto new.
// The unmatched residue of both sides is returned for bucketed pairing.
func matchByDatabaseID(old, next []model.Detail, result *Result) ([]model.Detail, []model.Detail) {
	usedNext := make([]bool, len(next))
	var remainingOld []model.Detail

	for _, o := range old {
		dbID := o.DatabaseID()
		if dbID == 0 {
			remainingOld = append(remainingOld, o)
			continue
		}
		matched := -1
		for j, n := range next {
			if usedNext[j] || n.Type != o.Type {
				continue
			}
			if n.DatabaseID() == dbID {
				matched = j
				break
			}
		}
		if matched == -1 {
			remainingOld = append(remainingOld, o)
			continue
		}
		usedNext[matched] = true
		result.Modifications = append(result.Modifications, constructModification(o, next[matched]))
	}

	var remainingNext []model.Detail
	for j, n := range next {
		if !usedNext[j] {
			remainingNext = append(remainingNext, n)
		}
	}
	return remainingOld, remainingNext
}

// constructModification produces the surviving detail for a matched
// (old, new) pair, backfilling any of transferredFields that new is
// missing, and always carrying DatabaseID forward from old.
func constructModification(old, next model.Detail) model.Detail {
	out := next
	for _, f := range transferredFields {
		if _, present := out.Value(f); present {
			continue
		}
		if v, ok := old.Value(f); ok {
			out = out.WithField(f, v)
		}
	}
	out = out.WithField(model.FieldDatabaseID, old.DatabaseID())
	return out
}

type typeBucket struct {
	removals  []model.Detail
	additions []model.Detail
}

type buckets struct {
	m     map[model.DetailType]*typeBucket
	order []model.DetailType
}

// bucketByType groups the residue old/new details by type, preserving
// first-seen order across both lists (resolving the Open Question about
// implementation-defined bucketing order: enumeration never ranges over a
// Go map directly, it walks the explicit order slice).
func bucketByType(old, next []model.Detail) buckets {
	b := buckets{m: map[model.DetailType]*typeBucket{}}
	ensure := func(t model.DetailType) *typeBucket {
		if bk, ok := b.m[t]; ok {
			return bk
		}
		bk := &typeBucket{}
		b.m[t] = bk
		b.order = append(b.order, t)
		return bk
	}
	for _, d := range old {
		bk := ensure(d.Type)
		bk.removals = append(bk.removals, d)
	}
	for _, d := range next {
		bk := ensure(d.Type)
		bk.additions = append(bk.additions, d)
	}
	return b
}

// pairLowestScoreFirst implements spec.md 4.C step 4: enumerate all
// (removal, addition) pairs within a type bucket, score each by counting
// field-value differences (skipping ignored fields), then greedily pair
// lowest-score first until one side is exhausted. Ties keep first-seen
// ordering since removals/additions are scanned in input order.
func pairLowestScoreFirst(removals, additions []model.Detail, opts Options, result *Result) {
	type pair struct {
		ri, ai int
		score  int
	}
	var pairs []pair
	for ri, r := range removals {
		for ai, a := range additions {
			pairs = append(pairs, pair{ri, ai, scorePair(r, a, opts)})
		}
	}

	usedRemoval := make([]bool, len(removals))
	usedAddition := make([]bool, len(additions))
	remaining := len(removals)
	if len(additions) < remaining {
		remaining = len(additions)
	}

	for remaining > 0 {
		best := -1
		for i, p := range pairs {
			if usedRemoval[p.ri] || usedAddition[p.ai] {
				continue
			}
			if best == -1 || p.score < pairs[best].score {
				best = i
			}
		}
		if best == -1 {
			break
		}
		p := pairs[best]
		usedRemoval[p.ri] = true
		usedAddition[p.ai] = true
		result.Modifications = append(result.Modifications, constructModification(removals[p.ri], additions[p.ai]))
		remaining--
	}

	for i, r := range removals {
		if !usedRemoval[i] {
			result.Deletions = append(result.Deletions, r)
		}
	}
	for i, a := range additions {
		if !usedAddition[i] {
			result.Additions = append(result.Additions, a)
		}
	}
}

// scorePair counts differing field values between r and a, skipping
// fields named in opts.IgnoreCommonFields / IgnoreDetailFields.
func scorePair(r, a model.Detail, opts Options) int {
	keys := make(map[model.FieldKey]struct{}, len(r.Fields)+len(a.Fields))
	for k := range r.Fields {
		keys[k] = struct{}{}
	}
	for k := range a.Fields {
		keys[k] = struct{}{}
	}

	score := 0
	for k := range keys {
		if _, skip := opts.IgnoreCommonFields[k]; skip {
			continue
		}
		if _, skip := opts.IgnoreDetailFields[k]; skip {
			continue
		}
		if !fieldValuesEqual(r.Fields[k], a.Fields[k]) {
			score++
		}
	}
	return score
}
