package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/model"
)

const defaultMongoDatabase = "change_monitor"

// MongoStore implements Store on two MongoDB collections. Mongo keeps
// timestamps at millisecond precision.
type MongoStore struct {
	client    *mongo.Client
	snapshots *mongo.Collection
	runs      *mongo.Collection
}

type snapshotDoc struct {
	ID          string                 `bson:"_id"`
	URL         string                 `bson:"url"`
	TakenAt     time.Time              `bson:"taken_at"`
	ContentHash string                 `bson:"content_hash"`
	Extracted   model.ExtractedContent `bson:"extracted"`
}

type runDoc struct {
	ID         string            `bson:"_id"`
	EntityID   string            `bson:"entity_id"`
	StartedAt  time.Time         `bson:"started_at"`
	FinishedAt time.Time         `bson:"finished_at"`
	Summary    model.RunSummary  `bson:"summary"`
	Results    []model.URLResult `bson:"results"`
}

// NewMongo connects to uri and pings the server before returning.
func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "mongo: ping")
	}

	db := client.Database(database)
	return &MongoStore{
		client:    client,
		snapshots: db.Collection("snapshots"),
		runs:      db.Collection("runs"),
	}, nil
}

// Migrate creates the lookup indexes. Existing indexes are left alone.
func (m *MongoStore) Migrate(ctx context.Context) error {
	_, err := m.snapshots.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "url", Value: 1}, {Key: "taken_at", Value: -1}},
	})
	if err != nil {
		return eris.Wrap(err, "mongo: create snapshot index")
	}
	_, err = m.runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_id", Value: 1}}},
		{Keys: bson.D{{Key: "started_at", Value: -1}}},
	})
	return eris.Wrap(err, "mongo: create run indexes")
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return eris.Wrap(m.client.Disconnect(ctx), "mongo: disconnect")
}

func (m *MongoStore) GetLatest(ctx context.Context, url string) (*model.Snapshot, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "taken_at", Value: -1}})

	var doc snapshotDoc
	err := m.snapshots.FindOne(ctx, bson.M{"url": url}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mongo: get latest snapshot %s", url)
	}
	return &model.Snapshot{
		URL:         doc.URL,
		TakenAt:     doc.TakenAt.UTC(),
		ContentHash: doc.ContentHash,
		Extracted:   doc.Extracted,
	}, nil
}

func (m *MongoStore) Put(ctx context.Context, snap *model.Snapshot) error {
	_, err := m.snapshots.InsertOne(ctx, snapshotDoc{
		ID:          uuid.New().String(),
		URL:         snap.URL,
		TakenAt:     snap.TakenAt,
		ContentHash: snap.ContentHash,
		Extracted:   snap.Extracted,
	})
	return eris.Wrapf(err, "mongo: insert snapshot %s", snap.URL)
}

// Prune groups snapshots by URL and deletes everything older than both the
// cutoff and the URL's newest snapshot.
func (m *MongoStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	cursor, err := m.snapshots.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$url"},
			{Key: "latest", Value: bson.D{{Key: "$max", Value: "$taken_at"}}},
		}}},
	})
	if err != nil {
		return 0, eris.Wrap(err, "mongo: aggregate latest snapshots")
	}
	defer cursor.Close(ctx)

	var removed int64
	for cursor.Next(ctx) {
		var group struct {
			URL    string    `bson:"_id"`
			Latest time.Time `bson:"latest"`
		}
		if err := cursor.Decode(&group); err != nil {
			return removed, eris.Wrap(err, "mongo: decode snapshot group")
		}
		res, err := m.snapshots.DeleteMany(ctx, bson.M{
			"url":      group.URL,
			"taken_at": bson.M{"$lt": pruneBound(olderThan, group.Latest)},
		})
		if err != nil {
			return removed, eris.Wrapf(err, "mongo: prune snapshots %s", group.URL)
		}
		removed += res.DeletedCount
	}
	if err := cursor.Err(); err != nil {
		return removed, eris.Wrap(err, "mongo: prune iterate")
	}
	zap.L().Debug("mongo: pruned snapshots", zap.Int64("removed", removed))
	return removed, nil
}

// pruneBound is the exclusive upper bound on taken_at for deletable
// snapshots of one URL.
func pruneBound(cutoff, latest time.Time) time.Time {
	if latest.Before(cutoff) {
		return latest
	}
	return cutoff
}

func (m *MongoStore) SaveRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := m.runs.InsertOne(ctx, runDoc{
		ID:         run.ID,
		EntityID:   run.EntityID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Summary:    run.Summary,
		Results:    run.Results,
	})
	return eris.Wrapf(err, "mongo: insert run %s", run.ID)
}

func (m *MongoStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := runQuery(filter)
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(filter.limit()))
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := m.runs.Find(ctx, query, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: list runs")
	}
	defer cursor.Close(ctx)

	var runs []model.Run
	for cursor.Next(ctx) {
		var doc runDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, eris.Wrap(err, "mongo: decode run")
		}
		runs = append(runs, model.Run{
			ID:         doc.ID,
			EntityID:   doc.EntityID,
			StartedAt:  doc.StartedAt.UTC(),
			FinishedAt: doc.FinishedAt.UTC(),
			Summary:    doc.Summary,
			Results:    doc.Results,
		})
	}
	return runs, eris.Wrap(cursor.Err(), "mongo: list runs iterate")
}

func runQuery(filter RunFilter) bson.M {
	query := bson.M{}
	if filter.EntityID != "" {
		query["entity_id"] = filter.EntityID
	}
	if !filter.Since.IsZero() {
		query["started_at"] = bson.M{"$gte": filter.Since}
	}
	return query
}
