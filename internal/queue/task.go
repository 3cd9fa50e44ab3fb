package queue

type TaskType string

const (
	// TaskTypeRegenerateReport generates (or, with Force, regenerates) the
	// report for DateKey.
	TaskTypeRegenerateReport TaskType = "regenerate_report"
	// TaskTypeSweepReports applies the retention policy.
	TaskTypeSweepReports TaskType = "sweep_reports"
)

type Task struct {
	TaskType TaskType
	DateKey  string
	Force    bool
	TraceID  *string
	Attempt  int
}
