package delivery

// JobEventType is a step of a job's lifecycle
type JobEventType int

const (
	JobStarted JobEventType = iota + 1
	JobSucceeded
	JobFailed
)

// String returns the string representation of the event type
func (t JobEventType) String() string {
	switch t {
	case JobStarted:
		return "started"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobEvent mirrors the lifecycle log lines as values
type JobEvent struct {
	Type       JobEventType
	JobID      string
	DeliveryID string
	Attempt    int
	Err        error
	Fatal      bool
	WillRetry  bool
}

// Listener receives job events synchronously from the worker goroutine
type Listener func(JobEvent)
