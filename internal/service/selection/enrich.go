package selection

import (
	"github.com/ashita-ai/haken/internal/model"
)

// Lookup is the result of a registry read that may legitimately find nothing.
type Lookup[T any] struct {
	Value T
	Found bool
}

// Found wraps a value that was present in the registry.
func Found[T any](v T) Lookup[T] {
	return Lookup[T]{Value: v, Found: true}
}

// Enrich builds the operator-facing row for one delegate of a selection log
// entry. profiles holds every profile that could be resolved, keyed by id.
//
// A missing delegate falls back to its id as the name with empty host and
// profile. A missing profile leaves the profile name empty. Scoping rule
// metadata recorded for the delegate is always surfaced, with whatever
// profile name its profile id still resolves to.
func Enrich(entry model.SelectionLog, delegateID string, delegate Lookup[model.Delegate], profiles map[string]model.DelegateProfile) model.SelectionLogParams {
	row := model.SelectionLogParams{
		DelegateID:     delegateID,
		DelegateName:   delegateID,
		Conclusion:     entry.Conclusion,
		Message:        entry.Message,
		EventTimestamp: entry.EventTimestamp,
		GroupKey:       entry.CategoryKey,
	}

	if delegate.Found {
		d := delegate.Value
		if d.Name != "" {
			row.DelegateName = d.Name
		}
		row.DelegateHostName = d.HostName
		row.DelegateType = d.Type
		if p, ok := profiles[d.ProfileID]; ok && d.ProfileID != "" {
			row.DelegateProfileName = p.Name
		}
	}

	if meta, ok := entry.DelegateMetadata[delegateID]; ok && meta.ProfileScopingRules != nil {
		rules := meta.ProfileScopingRules
		details := &model.ProfileScopingRulesDetails{
			ProfileID:                rules.ProfileID,
			ScopingRulesDescriptions: rules.Descriptions,
		}
		if p, ok := profiles[rules.ProfileID]; ok {
			details.ProfileName = p.Name
		}
		row.ProfileScopingRulesDetails = details
	}
	return row
}

// profileIDs returns the profile ids an entry's rows will need resolved.
func profileIDs(entry model.SelectionLog, delegates map[string]Lookup[model.Delegate]) []string {
	var ids []string
	for _, id := range entry.DelegateIDs {
		if d := delegates[id]; d.Found && d.Value.ProfileID != "" {
			ids = append(ids, d.Value.ProfileID)
		}
		if meta, ok := entry.DelegateMetadata[id]; ok && meta.ProfileScopingRules != nil && meta.ProfileScopingRules.ProfileID != "" {
			ids = append(ids, meta.ProfileScopingRules.ProfileID)
		}
	}
	return ids
}
