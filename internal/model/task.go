package model

// Raw setup abstraction keys a task may carry.
const (
	AbstractionAppID     = "appId"
	AbstractionServiceID = "serviceId"
	AbstractionEnvID     = "envId"
	AbstractionEnvType   = "envType"
	AbstractionNG        = "ng"
)

// Resolved setup abstraction keys stored on TaskMetadata.
const (
	SetupApplication     = "APPLICATION"
	SetupService         = "SERVICE"
	SetupEnvironment     = "ENVIRONMENT"
	SetupEnvironmentType = "ENVIRONMENT_TYPE"
)

// Task is the scheduler's view of a unit of work being matched to a delegate.
type Task struct {
	ID                           string            `json:"id"`
	AccountID                    string            `json:"account_id"`
	SelectionLogsTrackingEnabled bool              `json:"selection_logs_tracking_enabled"`
	SetupAbstractions            map[string]string `json:"setup_abstractions,omitempty"`
}

// IsNG reports whether the task belongs to the next-gen scoping model.
func (t Task) IsNG() bool {
	return t.SetupAbstractions[AbstractionNG] == "true"
}
