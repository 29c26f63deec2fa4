package dispatch

// Outcome is the terminal state of a run.
type Outcome string

const (
	// OutcomeCompleted means every enumerated file was processed or skipped.
	OutcomeCompleted Outcome = "completed"
	// OutcomeHaltedOnSpace means the space budget rejected further admission.
	OutcomeHaltedOnSpace Outcome = "halted_on_space"
	// OutcomeFailedFatal means the link log is corrupt or inconsistent.
	OutcomeFailedFatal Outcome = "failed_fatal"
	// OutcomeCanceled means the run context was canceled by the operator.
	OutcomeCanceled Outcome = "canceled"
)

// Summary reports what a run did, for the end-of-run report.
type Summary struct {
	Outcome    Outcome
	HaltReason string

	TotalFiles        int64
	Processed         int64
	SkippedMissingID  int64
	SkippedUnreadable int64
	SkippedExisting   int64
	WriteFailures     int64
	Remaining         int64

	BytesWritten int64
	BudgetBytes  int64
}
