package queue

import "github.com/dkrasnov/receipt-gateway/internal/entity"

// Envelope is the wire wrapper placed on the queue around entity.Job.
// Attempt is the queue's own delivery-retry counter (3 attempts,
// exponential backoff starting at 2s), distinct from
// Recognition.AttemptNumber, which ingest sets to 1 and the pipeline
// does not change.
type Envelope struct {
	Job     entity.Job `json:"job"`
	Attempt int        `json:"attempt"`
}
