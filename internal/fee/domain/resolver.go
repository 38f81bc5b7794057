package domain

import (
	"sort"
	"strings"
)

// Resolve computes the fee line items for one student and term.
//
// For each fee type the most specific active structure wins: a term match
// outranks a boarding match, and an exact match on both outranks either.
// Ties go to the most recently updated row. An active override for the
// same fee type replaces the amount; a term-scoped override outranks a
// year-wide one. Overrides without a matching structure still produce a
// line item so waived or extra charges stay visible.
//
// Resolve never fails: missing structures simply yield fewer items.
func Resolve(profile StudentProfile, term, year int, structures []FeeStructure, overrides []FeeOverride) []LineItem {
	classLevel := strings.TrimSpace(profile.ClassLevel)
	boarding := strings.ToLower(strings.TrimSpace(profile.BoardingStatus))

	standard := make(map[string]FeeStructure)
	for _, fs := range structures {
		if !fs.IsActive || fs.Year != year || !strings.EqualFold(strings.TrimSpace(fs.ClassLevel), classLevel) {
			continue
		}
		if fs.Term != nil && *fs.Term != term {
			continue
		}
		if !boardingMatches(fs.BoardingStatus, boarding) {
			continue
		}
		key := normalizeFeeType(fs.FeeType)
		current, ok := standard[key]
		if !ok || structureOutranks(fs, current) {
			standard[key] = fs
		}
	}

	custom := make(map[string]FeeOverride)
	for _, o := range overrides {
		if !o.IsActive || o.Year != year || o.StudentID != profile.StudentID {
			continue
		}
		if o.Term != nil && *o.Term != term {
			continue
		}
		key := normalizeFeeType(o.FeeType)
		current, ok := custom[key]
		if !ok || overrideOutranks(o, current) {
			custom[key] = o
		}
	}

	items := make([]LineItem, 0, len(standard)+len(custom))
	for key, fs := range standard {
		item := LineItem{
			FeeType:         key,
			Description:     fs.Description,
			StandardAmount:  fs.Amount,
			EffectiveAmount: fs.Amount,
		}
		if o, ok := custom[key]; ok {
			amount := o.CustomAmount
			item.CustomAmount = &amount
			item.EffectiveAmount = amount
		}
		items = append(items, item)
	}
	for key, o := range custom {
		if _, ok := standard[key]; ok {
			continue
		}
		amount := o.CustomAmount
		items = append(items, LineItem{
			FeeType:         key,
			Description:     o.Reason,
			CustomAmount:    &amount,
			EffectiveAmount: amount,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].FeeType < items[j].FeeType })
	return items
}

func normalizeFeeType(feeType string) string {
	return strings.ToLower(strings.TrimSpace(feeType))
}

func boardingMatches(structureBoarding *string, studentBoarding string) bool {
	if structureBoarding == nil {
		return true
	}
	value := strings.ToLower(strings.TrimSpace(*structureBoarding))
	return value == "" || value == BoardingStatusAll || value == studentBoarding
}

func specificity(fs FeeStructure) int {
	score := 0
	if fs.Term != nil {
		score += 2
	}
	if fs.BoardingStatus != nil {
		value := strings.ToLower(strings.TrimSpace(*fs.BoardingStatus))
		if value != "" && value != BoardingStatusAll {
			score++
		}
	}
	return score
}

func structureOutranks(candidate, current FeeStructure) bool {
	cs, ps := specificity(candidate), specificity(current)
	if cs != ps {
		return cs > ps
	}
	if !candidate.UpdatedAt.Equal(current.UpdatedAt) {
		return candidate.UpdatedAt.After(current.UpdatedAt)
	}
	return candidate.ID > current.ID
}

func overrideOutranks(candidate, current FeeOverride) bool {
	if (candidate.Term != nil) != (current.Term != nil) {
		return candidate.Term != nil
	}
	if !candidate.UpdatedAt.Equal(current.UpdatedAt) {
		return candidate.UpdatedAt.After(current.UpdatedAt)
	}
	return candidate.ID > current.ID
}
