package queue

import "context"

// Queue is the durable FIFO job queue contract consumed by C4 (enqueue)
// and C5 (dequeue, requeue-on-failure). A single topic, `ocr-jobs`,
// carries the entity.Job envelope.
type Queue interface {
	// Enqueue pushes a job and returns the resulting waiting count
	// (position), used by C4 to compute estimatedWait.
	Enqueue(ctx context.Context, payload []byte) (position int64, err error)
	// Dequeue blocks up to timeout for the next job; returns ok=false
	// on timeout with no error.
	Dequeue(ctx context.Context, payload *[]byte) (ok bool, err error)
	// Requeue schedules payload for redelivery after delay, tracking
	// attempt (the 0-based index of the delivery that failed) for the
	// queue's own retry policy (3 attempts, exponential backoff
	// starting at 2s). When the failed delivery was the last allowed
	// attempt, the payload is archived as failed instead.
	Requeue(ctx context.Context, payload []byte, attempt int) error
	// MarkCompleted archives payload in the bounded completed set.
	MarkCompleted(ctx context.Context, payload []byte) error
	WaitingCount(ctx context.Context) (int64, error)
}
