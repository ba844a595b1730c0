package webhook

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/domain"
)

// Event is the body posted for every image event.
type Event struct {
	Event      string             `json:"event"`
	OccurredAt time.Time          `json:"occurredAt"`
	Image      domain.ImageRecord `json:"image"`
}

// Notifier delivers image events to a single endpoint in the background.
// Delivery never blocks or fails the request that produced the event.
type Notifier struct {
	client   *Client
	endpoint string
	timeout  time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewNotifier(client *Client, endpoint string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		client:   client,
		endpoint: endpoint,
		timeout:  time.Minute,
		log:      log,
	}
}

func (n *Notifier) Notify(ctx context.Context, event string, rec domain.ImageRecord) {
	payload := Event{Event: event, OccurredAt: time.Now().UTC(), Image: rec}
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		if err := n.client.Send(sendCtx, n.endpoint, event, payload); err != nil {
			n.log.Warn("webhook delivery failed",
				zap.String("event", event),
				zap.String("image_id", rec.ID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
