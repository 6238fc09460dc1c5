// Package activity keeps the audit trail of administrative actions.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Entry struct {
	Actor      string         `json:"actor" bson:"actor"`
	Action     string         `json:"action" bson:"action"`
	EntityType string         `json:"entityType" bson:"entityType"`
	EntityID   string         `json:"entityId" bson:"entityId"`
	Details    map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp" bson:"timestamp"`
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Log records e and logs, rather than returns, a failure. Audit problems
// never undo the action being audited.
func Log(ctx context.Context, r Recorder, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := r.Record(ctx, e); err != nil {
		slog.Error("audit record failed", "action", e.Action, "entity", e.EntityType, "id", e.EntityID, "error", err)
	}
}

// Mongo stores entries in one collection, newest read first.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func ConnectMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		slog.Warn("audit index not created", "error", err)
	}

	slog.Info("mongo connected", "database", database, "collection", collection)
	return &Mongo{client: client, coll: coll}, nil
}

func (m *Mongo) Record(ctx context.Context, e Entry) error {
	_, err := m.coll.InsertOne(ctx, e)
	return err
}

func (m *Mongo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := []Entry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Nop is used when no audit store is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Recent(context.Context, int) ([]Entry, error) { return []Entry{}, nil }

// Memory keeps entries in process. Tests use it to observe audited actions.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := slices.Clone(m.entries)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Actions returns the recorded action names, oldest first.
func (m *Memory) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.Action
	}
	return names
}
