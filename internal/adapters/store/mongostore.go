package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fieldrank/fieldrank/pkg/metrics"
)

// Mongo implements Store on a MongoDB database, one collection per Kind.
// Record ids live in _id, so PutIfAbsent rides the unique index Mongo
// already maintains.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*Mongo)(nil)

// NewMongo connects to the given URI and returns a Store over dbName.
func NewMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	if uri == "" || dbName == "" {
		return nil, fmt.Errorf("mongo uri and database name must not be empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &Mongo{client: client, db: client.Database(dbName)}, nil
}

func (s *Mongo) collection(kind Kind) *mongo.Collection {
	return s.db.Collection(string(kind))
}

// observe records op latency and failures. Expected misses and condition
// failures are not errors from the store's point of view.
func observe(op string, start time.Time, err error) {
	metrics.ObserveStoreOp(op, time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConditionFailed) {
		metrics.RecordStoreError(op)
	}
}

// Get loads the record at key into out.
func (s *Mongo) Get(ctx context.Context, key Key, out any) (err error) {
	start := time.Now()
	defer func() { observe("get", start, err) }()

	err = s.collection(key.Kind).FindOne(ctx, bson.M{"_id": key.ID}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s/%s: %w", key.Kind, key.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", key.Kind, key.ID, err)
	}
	return nil
}

// Put writes (or replaces) a record.
func (s *Mongo) Put(ctx context.Context, kind Kind, id string, item any) (err error) {
	start := time.Now()
	defer func() { observe("put", start, err) }()

	doc, err := withID(id, item)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}
	_, err = s.collection(kind).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", kind, id, err)
	}
	return nil
}

// PutIfAbsent inserts a record; a duplicate _id maps to ErrConditionFailed.
func (s *Mongo) PutIfAbsent(ctx context.Context, kind Kind, id string, item any) (err error) {
	start := time.Now()
	defer func() { observe("put_if_absent", start, err) }()

	doc, err := withID(id, item)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}
	_, err = s.collection(kind).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s/%s: %w", kind, id, ErrConditionFailed)
	}
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", kind, id, err)
	}
	return nil
}

// Update applies field sets to an existing record.
func (s *Mongo) Update(ctx context.Context, key Key, set map[string]any) (err error) {
	start := time.Now()
	defer func() { observe("update", start, err) }()

	res, err := s.collection(key.Kind).UpdateOne(ctx, bson.M{"_id": key.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", key.Kind, key.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", key.Kind, key.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a record; a missing record is not an error.
func (s *Mongo) Delete(ctx context.Context, key Key) (err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()

	_, err = s.collection(key.Kind).DeleteOne(ctx, bson.M{"_id": key.ID})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", key.Kind, key.ID, err)
	}
	return nil
}

// Query returns a page of records matching q, ordered by _id for stable
// continuation tokens.
func (s *Mongo) Query(ctx context.Context, q Query) (_ Page, err error) {
	start := time.Now()
	defer func() { observe("query", start, err) }()

	filter := bson.M{}
	for field, want := range q.Conditions {
		filter[field] = want
	}
	if q.Range != nil {
		filter[q.Range.Field] = bson.M{"$gte": q.Range.From, "$lte": q.Range.To}
	}
	for field, want := range q.Filter {
		filter[field] = want
	}
	if q.StartToken != "" {
		filter["_id"] = bson.M{"$gt": q.StartToken}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		// Fetch one extra row to learn whether another page exists.
		opts.SetLimit(int64(q.Limit + 1))
	}

	cursor, err := s.collection(q.Kind).Find(ctx, filter, opts)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", q.Kind, err)
	}
	defer cursor.Close(ctx)

	var page Page
	var lastID string
	for cursor.Next(ctx) {
		if q.Limit > 0 && len(page.Items) == q.Limit {
			page.NextToken = lastID
			return page, nil
		}
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)
		page.Items = append(page.Items, raw)
		lastID = stringField(raw, "_id")
	}
	if err := cursor.Err(); err != nil {
		return Page{}, fmt.Errorf("query %s: %w", q.Kind, err)
	}
	return page, nil
}

// BatchPut writes records in bulk with unordered upserts.
func (s *Mongo) BatchPut(ctx context.Context, kind Kind, docs []Doc) (err error) {
	if len(docs) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("batch_put", start, err) }()
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		doc, err := withID(d.ID, d.Item)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", kind, d.ID, err)
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": d.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err = s.collection(kind).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("batch put %s: %w", kind, err)
	}
	return nil
}

// Close disconnects the underlying client.
func (s *Mongo) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// withID re-encodes item as a document whose _id is id.
func withID(id string, item any) (bson.D, error) {
	raw, err := bson.Marshal(item)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := bson.D{{Key: "_id", Value: id}}
	for _, e := range doc {
		if e.Key == "_id" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
