package queue

// Outcome tells the queue what happened to a job run
type Outcome int

const (
	Succeeded Outcome = iota + 1
	Retryable
	Fatal
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

/* Result is returned by handlers instead of panicking or throwing
 * Retry lets the queue back off and run the job again until its attempts run out
 * Fail dead-letters the job at once, no retry can help
 */
type Result struct {
	outcome Outcome
	err     error
}

// Done reports a successful run
func Done() Result {
	return Result{outcome: Succeeded}
}

// Retry reports a transient failure
func Retry(err error) Result {
	return Result{outcome: Retryable, err: err}
}

// Fail reports a failure no retry can fix
func Fail(err error) Result {
	return Result{outcome: Fatal, err: err}
}

// Outcome returns the kind of result; the zero Result counts as retryable
func (r Result) Outcome() Outcome {
	if r.outcome == 0 {
		return Retryable
	}
	return r.outcome
}

// Err returns the failure cause, nil on success
func (r Result) Err() error {
	return r.err
}

// Reason is the failure message recorded on the job
func (r Result) Reason() string {
	if r.err == nil {
		if r.Outcome() == Succeeded {
			return ""
		}
		return "handler returned no result"
	}
	return r.err.Error()
}
