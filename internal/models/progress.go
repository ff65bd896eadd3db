package models

// ProgressEvent is pushed to a progress sink for every row transition.
type ProgressEvent struct {
	JobID        string         `json:"jobId"`
	RowIndex     int            `json:"rowIndex"`
	RowNumber    int            `json:"rowNumber"`
	Title        string         `json:"title"`
	Status       DocumentStatus `json:"status"`
	Progress     float64        `json:"progress"`
	Tags         []string       `json:"tags,omitempty"`
	Error        string         `json:"error,omitempty"`
	ErrorKind    ErrorKind      `json:"errorKind,omitempty"`
	RetryAfterMs int64          `json:"retryAfterMs,omitempty"`
	RetryCount   int            `json:"retryCount,omitempty"`
	// JobStatus is set only on the closing event of a job, which carries
	// RowIndex -1.
	JobStatus JobStatus `json:"jobStatus,omitempty"`
}

// JobFinished builds the closing event published after a job ends.
func JobFinished(job *BatchJob) ProgressEvent {
	return ProgressEvent{
		JobID:     job.ID,
		RowIndex:  -1,
		Progress:  1,
		JobStatus: job.Status,
		Error:     job.Error,
	}
}

// Terminal reports whether the event closes out its row.
func (e ProgressEvent) Terminal() bool {
	return e.Status == DocumentSuccess || e.Status == DocumentFailed
}
