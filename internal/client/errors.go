package client

import "fmt"

// TransportError covers network failures and 5xx responses. It is
// potentially transient: the report poller retries through it, other
// callers surface it with a manual retry affordance.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BusinessError is a condition the server explicitly reported, such as no
// database being registered. It is never retried automatically.
type BusinessError struct {
	Op      string
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// ValidationError is a client-side precondition failure. It is raised
// before any request is sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// JobError means the job itself completed abnormally. It is carried in the
// report's error field, is terminal, and is only re-submittable by the user
// as a new or edited job.
type JobError struct {
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

func transportErr(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func statusErr(op string, code int) *TransportError {
	return &TransportError{Op: op, StatusCode: code}
}
