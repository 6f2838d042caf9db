package bus

import (
	"context"
	"encoding/json"

	"github.com/dkrasnov/receipt-gateway/internal/entity"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const channel = "ocr:events"

// Publisher publishes lifecycle events on the ocr:events channel.
// Delivery is best-effort: publish failures are logged, never
// propagated, and never reverse a state transition.
type Publisher struct {
	client *redis.Client
	logger logger.Interface
}

func New(client *redis.Client, l logger.Interface) *Publisher {
	return &Publisher{client: client, logger: l}
}

type envelope struct {
	Event     entity.EventKind `json:"event"`
	Timestamp int64            `json:"timestamp"`
}

func (p *Publisher) publish(ctx context.Context, kind entity.EventKind, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error(err, "Publisher - publish - json.Marshal event=%s", kind)
		return
	}

	if err := p.client.Publish(ctx, channel, b).Err(); err != nil {
		p.logger.Error(err, "Publisher - publish - p.client.Publish event=%s", kind)
	}
}

type QueuedPayload struct {
	envelope
	ImageID         string  `json:"imageId"`
	RecognitionID   string  `json:"recognitionId"`
	SourceService   *string `json:"sourceService,omitempty"`
	SourceReference *string `json:"sourceReference,omitempty"`
	Position        int64   `json:"position"`
	EstimatedWaitMs int64   `json:"estimatedWait"`
}

func (p *Publisher) PublishQueued(ctx context.Context, pl QueuedPayload, nowMs int64) {
	pl.envelope = envelope{Event: entity.EventQueued, Timestamp: nowMs}
	p.publish(ctx, entity.EventQueued, pl)
}

type ProcessingPayload struct {
	envelope
	ImageID       string `json:"imageId"`
	RecognitionID string `json:"recognitionId"`
}

func (p *Publisher) PublishProcessing(ctx context.Context, pl ProcessingPayload, nowMs int64) {
	pl.envelope = envelope{Event: entity.EventProcessing, Timestamp: nowMs}
	p.publish(ctx, entity.EventProcessing, pl)
}

type CompletedPayload struct {
	envelope
	ImageID        string             `json:"imageId"`
	RecognitionID  string             `json:"recognitionId"`
	ResultType     entity.ResultType  `json:"resultType"`
	Text           *TextResult        `json:"text,omitempty"`
	QR             *QRResult          `json:"qr,omitempty"`
	ProcessingTime int64              `json:"processingTime"`
}

type TextResult struct {
	RawText    string        `json:"rawText"`
	Confidence float64       `json:"confidence"`
	Engine     entity.Engine `json:"engine"`
	Aligned    bool          `json:"aligned"`
}

type QRResult struct {
	QRData     string             `json:"qrData"`
	QRFormat   entity.QRFormat    `json:"qrFormat"`
	QRLocation entity.QRLocation  `json:"qrLocation"`
}

func (p *Publisher) PublishCompleted(ctx context.Context, pl CompletedPayload, nowMs int64) {
	pl.envelope = envelope{Event: entity.EventCompleted, Timestamp: nowMs}
	p.publish(ctx, entity.EventCompleted, pl)
}

type FailedPayload struct {
	envelope
	ImageID       string `json:"imageId"`
	RecognitionID string `json:"recognitionId"`
	Error         string `json:"error"`
}

func (p *Publisher) PublishFailed(ctx context.Context, pl FailedPayload, nowMs int64) {
	pl.envelope = envelope{Event: entity.EventFailed, Timestamp: nowMs}
	p.publish(ctx, entity.EventFailed, pl)
}
