package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conclusion is the coarse outcome class of a selection category.
type Conclusion string

const (
	ConclusionAccepted           Conclusion = "ACCEPTED"
	ConclusionRejected           Conclusion = "REJECTED"
	ConclusionSelected           Conclusion = "SELECTED"
	ConclusionDisconnected       Conclusion = "DISCONNECTED"
	ConclusionWaitingForApproval Conclusion = "WAITING_FOR_APPROVAL"
)

// Category identifies why a delegate was accepted, rejected or selected for a task.
// The set is closed: every value has an entry in the category table below.
type Category string

const (
	CategoryCapabilityMatched               Category = "CAPABILITY_MATCHED"
	CategoryTaskAssigned                    Category = "TASK_ASSIGNED"
	CategoryNoIncludeScopeMatched           Category = "NO_INCLUDE_SCOPE_MATCHED"
	CategoryExcludeScopeMatched             Category = "EXCLUDE_SCOPE_MATCHED"
	CategoryMissingSelector                 Category = "MISSING_SELECTOR"
	CategoryMissingAllSelectors             Category = "MISSING_ALL_SELECTORS"
	CategoryProfileScopeNotMatched          Category = "PROFILE_SCOPE_NOT_MATCHED"
	CategoryOwnerNotMatched                 Category = "OWNER_NOT_MATCHED"
	CategoryTaskScopeMismatch               Category = "TASK_SCOPE_MISMATCH"
	CategoryDisconnected                    Category = "DISCONNECTED"
	CategoryWaitingForApproval              Category = "WAITING_FOR_APPROVAL"
	CategoryScalingGroupDisconnected        Category = "SCALING_GROUP_DISCONNECTED"
	CategoryMustExecuteOnDelegateMatched    Category = "MUST_EXECUTE_ON_DELEGATE_MATCHED"
	CategoryMustExecuteOnDelegateNotMatched Category = "MUST_EXECUTE_ON_DELEGATE_NOT_MATCHED"
)

// categoryKeySep joins a category name with its parameters in the stored key.
const categoryKeySep = ":"

// keyParamEscaper percent-encodes the separator (and the escape character
// itself) inside parameters so that no two parameter lists share a key.
var keyParamEscaper = strings.NewReplacer("%", "%25", categoryKeySep, "%3A")

type categoryDef struct {
	conclusion Conclusion
	template   string
	params     int
}

var categories = map[Category]categoryDef{
	CategoryCapabilityMatched:               {ConclusionAccepted, "Successfully matched required delegate capabilities", 0},
	CategoryTaskAssigned:                    {ConclusionSelected, "Delegate assigned for task execution", 0},
	CategoryNoIncludeScopeMatched:           {ConclusionRejected, "No matching include scope", 0},
	CategoryExcludeScopeMatched:             {ConclusionRejected, "Matched exclude scope %s", 1},
	CategoryMissingSelector:                 {ConclusionRejected, "Missing selector %s from %s", 2},
	CategoryMissingAllSelectors:             {ConclusionRejected, "Missing all selectors", 0},
	CategoryProfileScopeNotMatched:          {ConclusionRejected, "Delegate profile scoping rules not matched", 0},
	CategoryOwnerNotMatched:                 {ConclusionRejected, "No matching owner %s", 1},
	CategoryTaskScopeMismatch:               {ConclusionRejected, "Cannot assign %s task to delegate of a different scoping model", 1},
	CategoryDisconnected:                    {ConclusionDisconnected, "Delegate(s) not available for task assignment", 0},
	CategoryWaitingForApproval:              {ConclusionWaitingForApproval, "Delegate(s) waiting for approval", 0},
	CategoryScalingGroupDisconnected:        {ConclusionDisconnected, "Delegate scaling group %s is disconnected", 1},
	CategoryMustExecuteOnDelegateMatched:    {ConclusionAccepted, "Delegate was targeted for task execution", 0},
	CategoryMustExecuteOnDelegateNotMatched: {ConclusionRejected, "Delegate was not targeted for task execution", 0},
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// Conclusion returns the fixed conclusion for the category.
func (c Category) Conclusion() Conclusion {
	return categories[c].conclusion
}

// ParamCount returns how many parameters the category's key and message take.
func (c Category) ParamCount() int {
	return categories[c].params
}

// Key returns the stored category key for the given parameters.
// Distinct parameter values yield distinct keys.
func (c Category) Key(params ...string) (string, error) {
	def, ok := categories[c]
	if !ok {
		return "", fmt.Errorf("unknown selection category %q", c)
	}
	if len(params) != def.params {
		return "", fmt.Errorf("category %s takes %d parameter(s), got %d", c, def.params, len(params))
	}
	if def.params == 0 {
		return string(c), nil
	}
	escaped := make([]string, len(params))
	for i, p := range params {
		escaped[i] = keyParamEscaper.Replace(p)
	}
	return string(c) + categoryKeySep + strings.Join(escaped, categoryKeySep), nil
}

// Message renders the human-readable message for the given parameters.
func (c Category) Message(params ...string) string {
	def := categories[c]
	if def.params == 0 {
		return def.template
	}
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}
	return fmt.Sprintf(def.template, args...)
}

// Categories returns every known category. Order is unspecified.
func Categories() []Category {
	out := make([]Category, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	return out
}

// ProfileScopingRules records which scoping rules of a delegate profile
// rejected the task.
type ProfileScopingRules struct {
	ProfileID    string   `json:"profile_id"`
	Descriptions []string `json:"descriptions"`
}

// DelegateMetadata is structured extra context attached to one delegate
// within a selection log entry.
type DelegateMetadata struct {
	ProfileScopingRules *ProfileScopingRules `json:"profile_scoping_rules,omitempty"`
}

// SelectionLog is the durable record of every delegate that shared one
// decision category for a task. One row per (account, task, category key).
type SelectionLog struct {
	ID               uuid.UUID                   `json:"id"`
	AccountID        string                      `json:"account_id"`
	TaskID           string                      `json:"task_id"`
	CategoryKey      string                      `json:"category_key"`
	DelegateIDs      []string                    `json:"delegate_ids"`
	Conclusion       Conclusion                  `json:"conclusion"`
	Message          string                      `json:"message"`
	EventTimestamp   time.Time                   `json:"event_timestamp"`
	DelegateMetadata map[string]DelegateMetadata `json:"delegate_metadata,omitempty"`
}

// TaskMetadata holds the resolved scope labels captured for a task when its
// first selection batch was saved. Immutable once created.
type TaskMetadata struct {
	AccountID         string            `json:"account_id"`
	TaskID            string            `json:"task_id"`
	SetupAbstractions map[string]string `json:"setup_abstractions"`
	CreatedAt         time.Time         `json:"created_at"`
}

// ProfileScopingRulesDetails is the enriched, operator-facing view of
// ProfileScopingRules.
type ProfileScopingRulesDetails struct {
	ProfileID                string   `json:"profile_id"`
	ProfileName              string   `json:"profile_name"`
	ScopingRulesDescriptions []string `json:"scoping_rules_descriptions"`
}

// SelectionLogParams is one flattened, enriched row of a task's selection narrative.
type SelectionLogParams struct {
	DelegateID                 string                      `json:"delegate_id"`
	DelegateName               string                      `json:"delegate_name"`
	DelegateHostName           string                      `json:"delegate_host_name"`
	DelegateType               string                      `json:"delegate_type,omitempty"`
	DelegateProfileName        string                      `json:"delegate_profile_name"`
	Conclusion                 Conclusion                  `json:"conclusion"`
	Message                    string                      `json:"message"`
	EventTimestamp             time.Time                   `json:"event_timestamp"`
	GroupKey                   string                      `json:"group_key"`
	ProfileScopingRulesDetails *ProfileScopingRulesDetails `json:"profile_scoping_rules_details,omitempty"`
}

// SelectionLogsData combines a task's selection rows with its captured
// setup abstractions. TaskSetupAbstractions is nil for tasks recorded
// before metadata capture existed.
type SelectionLogsData struct {
	Logs                  []SelectionLogParams `json:"logs"`
	TaskSetupAbstractions map[string]string    `json:"task_setup_abstractions,omitempty"`
}
