package selection

import (
	"slices"
	"time"

	"github.com/ashita-ai/haken/internal/model"
)

// Task scope labels used as the TASK_SCOPE_MISMATCH parameter.
const (
	scopeNextGen  = "next-gen"
	scopeFirstGen = "first-gen"
)

// Decision is one outcome reached for one or more delegates while
// evaluating a task.
type Decision struct {
	Category    model.Category
	Params      []string
	DelegateIDs []string
	Metadata    map[string]model.DelegateMetadata
}

// Batch accumulates the decisions of a single evaluation pass over the
// delegate pool. It holds at most one entry per category key, in first-seen
// order. A Batch belongs to one goroutine; concurrent passes over the same
// task each build their own and rely on Save to merge them.
//
// Every method is safe to call on a nil *Batch and does nothing, so callers
// can record unconditionally whether or not tracking is enabled.
type Batch struct {
	TaskID            string
	AccountID         string
	IsTaskNg          bool
	SetupAbstractions map[string]string
	Entries           []model.SelectionLog

	index map[string]int
	now   func() time.Time
}

// Record adds a decision to the batch. It is a no-op when b is nil,
// accountID is empty, no non-empty delegate id is given, or the category
// and parameters do not form a valid key.
//
// A repeated category key unions the delegate ids into the existing entry
// and merges metadata per delegate, last write wins. Metadata for a delegate
// id the decision does not name is dropped.
func (b *Batch) Record(accountID string, d Decision) {
	if b == nil || accountID == "" {
		return
	}
	ids := nonEmpty(d.DelegateIDs)
	if len(ids) == 0 {
		return
	}
	key, err := d.Category.Key(d.Params...)
	if err != nil {
		return
	}

	if b.index == nil {
		b.index = make(map[string]int, len(b.Entries))
		for i, e := range b.Entries {
			b.index[e.CategoryKey] = i
		}
	}

	i, ok := b.index[key]
	if !ok {
		b.Entries = append(b.Entries, model.SelectionLog{
			AccountID:      accountID,
			TaskID:         b.TaskID,
			CategoryKey:    key,
			Conclusion:     d.Category.Conclusion(),
			Message:        d.Category.Message(d.Params...),
			EventTimestamp: b.clock(),
		})
		i = len(b.Entries) - 1
		b.index[key] = i
	}
	e := &b.Entries[i]
	e.DelegateIDs = unionIDs(e.DelegateIDs, ids)
	for id, m := range d.Metadata {
		// Metadata only ever surfaces through a row for that delegate.
		if !slices.Contains(ids, id) {
			continue
		}
		if e.DelegateMetadata == nil {
			e.DelegateMetadata = make(map[string]model.DelegateMetadata, len(d.Metadata))
		}
		e.DelegateMetadata[id] = m
	}
}

// Log records a parameterless category for the given delegates.
func (b *Batch) Log(accountID string, c model.Category, delegateIDs ...string) {
	b.Record(accountID, Decision{Category: c, DelegateIDs: delegateIDs})
}

// LogMissingSelector records a delegate lacking a selector the task requires.
func (b *Batch) LogMissingSelector(accountID, delegateID, selector, origin string) {
	b.Record(accountID, Decision{
		Category:    model.CategoryMissingSelector,
		Params:      []string{selector, origin},
		DelegateIDs: []string{delegateID},
	})
}

// LogExcludeScopeMatched records a delegate rejected by a named exclude scope.
func (b *Batch) LogExcludeScopeMatched(accountID, delegateID, scope string) {
	b.Record(accountID, Decision{
		Category:    model.CategoryExcludeScopeMatched,
		Params:      []string{scope},
		DelegateIDs: []string{delegateID},
	})
}

// LogOwnerNotMatched records a delegate whose owner does not cover the task.
func (b *Batch) LogOwnerNotMatched(accountID, delegateID, owner string) {
	b.Record(accountID, Decision{
		Category:    model.CategoryOwnerNotMatched,
		Params:      []string{owner},
		DelegateIDs: []string{delegateID},
	})
}

// LogProfileScopeNotMatched records a delegate rejected by its profile's
// scoping rules, keeping the rule descriptions as metadata.
func (b *Batch) LogProfileScopeNotMatched(accountID, delegateID, profileID string, descriptions []string) {
	if delegateID == "" {
		return
	}
	b.Record(accountID, Decision{
		Category:    model.CategoryProfileScopeNotMatched,
		DelegateIDs: []string{delegateID},
		Metadata: map[string]model.DelegateMetadata{
			delegateID: {ProfileScopingRules: &model.ProfileScopingRules{
				ProfileID:    profileID,
				Descriptions: descriptions,
			}},
		},
	})
}

// LogTaskScopeMismatch records a delegate on the other scoping model than the task.
func (b *Batch) LogTaskScopeMismatch(accountID, delegateID string) {
	if b == nil {
		return
	}
	scope := scopeFirstGen
	if b.IsTaskNg {
		scope = scopeNextGen
	}
	b.Record(accountID, Decision{
		Category:    model.CategoryTaskScopeMismatch,
		Params:      []string{scope},
		DelegateIDs: []string{delegateID},
	})
}

// LogDisconnected records delegates that are not connected.
func (b *Batch) LogDisconnected(accountID string, delegateIDs ...string) {
	b.Log(accountID, model.CategoryDisconnected, delegateIDs...)
}

// LogWaitingForApproval records delegates that have not been approved yet.
func (b *Batch) LogWaitingForApproval(accountID string, delegateIDs ...string) {
	b.Log(accountID, model.CategoryWaitingForApproval, delegateIDs...)
}

// LogScalingGroupDisconnected records the members of a disconnected scaling group.
func (b *Batch) LogScalingGroupDisconnected(accountID, group string, delegateIDs ...string) {
	b.Record(accountID, Decision{
		Category:    model.CategoryScalingGroupDisconnected,
		Params:      []string{group},
		DelegateIDs: delegateIDs,
	})
}

// Len returns the number of distinct entries in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Entries)
}

func (b *Batch) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now().UTC()
}

// unionIDs appends the ids from add that dst does not already hold.
func unionIDs(dst, add []string) []string {
	for _, id := range add {
		if !slices.Contains(dst, id) {
			dst = append(dst, id)
		}
	}
	return dst
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
