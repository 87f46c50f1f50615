// Package mongo provides a monitor.Store backed by MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/stepflow/internal/codec"
	"github.com/petrijr/stepflow/pkg/api"
	"github.com/petrijr/stepflow/pkg/monitor"
)

// Store is a monitor.Store backed by two MongoDB collections: "runs" holds
// one document per run and "state_values" one document per recorded key.
type Store struct {
	runs   *mongo.Collection
	values *mongo.Collection
}

var _ monitor.Store = (*Store)(nil)

// NewStore creates a Mongo-backed store and ensures its indexes.
// dbName defaults to "stepflow" if empty.
func NewStore(ctx context.Context, client *mongo.Client, dbName string) (*Store, error) {
	if dbName == "" {
		dbName = "stepflow"
	}
	db := client.Database(dbName)
	s := &Store{
		runs:   db.Collection("runs"),
		values: db.Collection("state_values"),
	}

	if _, err := s.runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "started_at", Value: -1}},
	}); err != nil {
		return nil, fmt.Errorf("create runs index: %w", err)
	}
	if _, err := s.values.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("create values index: %w", err)
	}
	return s, nil
}

type runDoc struct {
	ID         string `bson:"_id"`
	Workflow   string `bson:"workflow"`
	Status     string `bson:"status"`
	Error      string `bson:"error"`
	StartedAt  int64  `bson:"started_at"`
	FinishedAt *int64 `bson:"finished_at"`
}

func (d runDoc) toRun() *monitor.Run {
	r := &monitor.Run{
		ID:        d.ID,
		Workflow:  d.Workflow,
		Status:    monitor.Status(d.Status),
		Error:     d.Error,
		StartedAt: time.Unix(0, d.StartedAt),
	}
	if d.FinishedAt != nil {
		t := time.Unix(0, *d.FinishedAt)
		r.FinishedAt = &t
	}
	return r
}

type valueDoc struct {
	RunID string `bson:"run_id"`
	Key   string `bson:"key"`
	Value []byte `bson:"value"`
}

func valueID(runID, key string) bson.D {
	return bson.D{{Key: "run", Value: runID}, {Key: "key", Value: key}}
}

func (s *Store) StartRun(ctx context.Context, run api.RunInfo, at time.Time) error {
	doc := runDoc{
		ID:        run.ID,
		Workflow:  run.Workflow,
		Status:    string(monitor.StatusRunning),
		StartedAt: at.UnixNano(),
	}
	_, err := s.runs.ReplaceOne(ctx, bson.M{"_id": run.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	if _, err := s.values.DeleteMany(ctx, bson.M{"run_id": run.ID}); err != nil {
		return fmt.Errorf("reset values: %w", err)
	}
	return nil
}

func (s *Store) PutValue(ctx context.Context, runID, key string, value any) error {
	data, err := codec.EncodeValue(codec.Portable(value))
	if err != nil {
		return err
	}

	n, err := s.runs.CountDocuments(ctx, bson.M{"_id": runID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return monitor.ErrRunNotFound
	}

	update := bson.M{"$set": valueDoc{RunID: runID, Key: key, Value: data}}
	_, err = s.values.UpdateByID(ctx, valueID(runID, key), update, options.Update().SetUpsert(true))
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status monitor.Status, errMsg string, at time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"status":      string(status),
			"error":       errMsg,
			"finished_at": at.UnixNano(),
		},
	}
	res, err := s.runs.UpdateByID(ctx, runID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return monitor.ErrRunNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*monitor.Run, error) {
	var doc runDoc
	if err := s.runs.FindOne(ctx, bson.M{"_id": runID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, monitor.ErrRunNotFound
		}
		return nil, err
	}
	r := doc.toRun()

	cur, err := s.values.Find(ctx, bson.M{"run_id": runID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	r.Values = make(map[string]any)
	for cur.Next(ctx) {
		var vd valueDoc
		if err := cur.Decode(&vd); err != nil {
			return nil, err
		}
		v, err := codec.DecodeValue(vd.Value)
		if err != nil {
			return nil, err
		}
		r.Values[vd.Key] = v
	}
	return r, cur.Err()
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]*monitor.Run, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "started_at", Value: -1},
		{Key: "_id", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.runs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*monitor.Run
	for cur.Next(ctx) {
		var doc runDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRun())
	}
	return out, cur.Err()
}
