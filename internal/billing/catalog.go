// Package billing provides the plan catalog, entitlement evaluation, trial
// lifecycle, and subscription activation domain logic.
package billing

import (
	"encoding/json"

	"huddle/internal/types"
)

// defaultCatalog defines the hardcoded plan limits used whenever no stored
// override exists (or the override store is unreachable on a read path that
// feeds a user-facing decision).
//
//	| Plan     | Duration | Participants | Recordings | Streaming | 1:1 unlimited |
//	|----------|----------|--------------|------------|-----------|---------------|
//	| Free     | 40 min   | 100          | No         | No        | Yes           |
//	| Pro      | 24 h     | 300          | Yes        | Yes       | Yes           |
//	| Business | 24 h     | 1,000        | Yes        | Yes       | Yes           |
//
// Pro additionally carries the trial settings: 14 days, fee charging disabled.
var defaultCatalog = types.PlanCatalog{
	Free: types.PlanLimits{
		MaxDurationMinutes: 40,
		MaxParticipants:    100,
		RecordingsEnabled:  false,
		StreamingEnabled:   false,
		UnlimitedOneOnOne:  true,
	},
	Pro: types.PlanLimits{
		MaxDurationMinutes: 1440,
		MaxParticipants:    300,
		RecordingsEnabled:  true,
		StreamingEnabled:   true,
		UnlimitedOneOnOne:  true,
		TrialDurationDays:  14,
		TrialChargeEnabled: false,
		TrialChargeAmount:  0,
	},
	Business: types.PlanLimits{
		MaxDurationMinutes: 1440,
		MaxParticipants:    1000,
		RecordingsEnabled:  true,
		StreamingEnabled:   true,
		UnlimitedOneOnOne:  true,
	},
}

// DefaultCatalog returns a copy of the hardcoded plan catalog.
func DefaultCatalog() types.PlanCatalog {
	return defaultCatalog
}

// MergeCatalog decodes a stored catalog override over the defaults. Fields
// present in the override win; omitted fields (including the pro trial
// sub-fields) keep their default values. A nil or empty override yields the
// defaults unchanged.
func MergeCatalog(raw json.RawMessage) (types.PlanCatalog, error) {
	merged := DefaultCatalog()
	if len(raw) == 0 {
		return merged, nil
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return DefaultCatalog(), err
	}
	return merged, nil
}

// ValidateCatalog checks the structural invariants of a catalog before it is
// written: every plan present with a positive participant cap, non-negative
// duration, and non-negative trial amounts.
func ValidateCatalog(c types.PlanCatalog) error {
	for _, entry := range []struct {
		plan   types.PlanTier
		limits types.PlanLimits
	}{
		{types.PlanFree, c.Free},
		{types.PlanPro, c.Pro},
		{types.PlanBusiness, c.Business},
	} {
		if entry.limits.MaxParticipants < 1 {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationCatalogShape,
				"max_participants must be at least 1",
				nil,
				map[string]any{"plan": string(entry.plan)},
			)
		}
		if entry.limits.MaxDurationMinutes < 0 {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationCatalogShape,
				"max_duration_minutes must not be negative",
				nil,
				map[string]any{"plan": string(entry.plan)},
			)
		}
		if entry.limits.TrialDurationDays < 0 || entry.limits.TrialChargeAmount < 0 {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationCatalogShape,
				"trial settings must not be negative",
				nil,
				map[string]any{"plan": string(entry.plan)},
			)
		}
	}
	return nil
}
