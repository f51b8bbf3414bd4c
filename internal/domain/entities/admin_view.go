package entities

// AdminView is what the admin panel renders: the filtered mirror plus the
// state of every pending admin action.
type AdminView struct {
	Records             []StoredRecord `json:"records"`
	Total               int            `json:"total"`
	Filter              string         `json:"filter"`
	Loading             bool           `json:"loading"`
	LoadError           string         `json:"load_error,omitempty"`
	PermissionError     bool           `json:"permission_error"`
	PendingConfirmation string         `json:"pending_confirmation,omitempty"`
	DeletesInFlight     []string       `json:"deletes_in_flight"`
	BulkDeleteInFlight  bool           `json:"bulk_delete_in_flight"`
	ProbeInFlight       bool           `json:"probe_in_flight"`
}

// ConfirmOutcome is the result of activating delete on an item.
type ConfirmOutcome string

const (
	// ConfirmArmed means the item now awaits a second activation.
	ConfirmArmed ConfirmOutcome = "ARMED"
	// ConfirmDeleted means the second activation deleted the item.
	ConfirmDeleted ConfirmOutcome = "DELETED"
	// ConfirmBusy means a delete touching the item is already running.
	ConfirmBusy ConfirmOutcome = "BUSY"
	// ConfirmFailed means the delete was attempted and failed.
	ConfirmFailed ConfirmOutcome = "FAILED"
)

// ProbeCategory groups diagnostic probe failures by the guidance they need.
type ProbeCategory string

const (
	ProbeCategoryNone             ProbeCategory = ""
	ProbeCategoryPermissionDenied ProbeCategory = "permission-denied"
	ProbeCategoryUnavailable      ProbeCategory = "unavailable"
	ProbeCategoryOther            ProbeCategory = "other"
)

// ProbeStage names the probe step that failed.
type ProbeStage string

const (
	ProbeStageWrite   ProbeStage = "write"
	ProbeStageCleanup ProbeStage = "cleanup"
)

// ProbeResult reports one diagnostic probe run.
type ProbeResult struct {
	OK         bool          `json:"ok"`
	DocumentID string        `json:"document_id"`
	Stage      ProbeStage    `json:"stage,omitempty"`
	Category   ProbeCategory `json:"category,omitempty"`
	Message    string        `json:"message"`
	Guidance   string        `json:"guidance,omitempty"`
}

// DiagnosticDocument is the throwaway document written by the probe.
type DiagnosticDocument struct {
	Timestamp string `json:"timestamp"`
	Test      bool   `json:"test"`
	Agent     string `json:"agent"`
}
