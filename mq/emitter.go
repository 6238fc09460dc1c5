package mq

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "petpet-events"

// Event names
const (
	OrderCreated       = "order-created"
	OrderStatusChanged = "order-status-changed"
	ReviewAdded        = "review-added"
	ReviewUpdated      = "review-updated"
	ReviewDeleted      = "review-deleted"
	ReviewModerated    = "review-moderated"
	ProductCreated     = "product-created"
	ProductUpdated     = "product-updated"
	ProductDeleted     = "product-deleted"
)

// Event is the message carried on the bus. UserID names the user the event
// concerns, if any; live updates are routed by it.
type Event struct {
	Name       string          `json:"name"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	UserID     string          `json:"userId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	At         time.Time       `json:"at"`
}

// NewEvent marshals data into the event body. A body that cannot be
// marshalled is dropped and logged; the event itself still goes out.
func NewEvent(entityType, entityID, userID string, data any) Event {
	ev := Event{EntityType: entityType, EntityID: entityID, UserID: userID, At: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			slog.Warn("event body dropped", "entity", entityType, "id", entityID, "error", err)
		} else {
			ev.Data = raw
		}
	}
	return ev
}

type Handler func(ctx context.Context, ev Event)

// Publisher emits domain events. Emit never fails the caller; delivery
// problems are logged.
type Publisher interface {
	Emit(ctx context.Context, name string, ev Event)
}

// Local dispatches events to in-process handlers synchronously.
type Local struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Subscribe(h Handler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
}

func (l *Local) Emit(ctx context.Context, name string, ev Event) {
	ev.Name = name
	l.mu.RLock()
	handlers := l.handlers
	l.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}

// Redis publishes events as JSON on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel}
}

func (p *Redis) Emit(ctx context.Context, name string, ev Event) {
	ev.Name = name
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal event", "event", name, "error", err)
		return
	}

	// the request context may already be cancelled once the response is out
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(pubCtx, p.channel, data).Err(); err != nil {
		slog.Error("publish event", "event", name, "channel", p.channel, "error", err)
		return
	}
	slog.Debug("event published", "event", name, "entity", ev.EntityType, "id", ev.EntityID)
}

// StartWorker consumes channel until ctx is done, handing every decodable
// event to h.
func StartWorker(ctx context.Context, client *redis.Client, channel string, h Handler) {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	slog.Info("event worker listening", "channel", channel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, err := Decode([]byte(msg.Payload))
			if err != nil {
				slog.Warn("bad event payload", "error", err)
				continue
			}
			h(ctx, ev)
		}
	}
}

func Decode(payload []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(payload, &ev)
	return ev, err
}
