package storage

import (
	"context"
	"errors"
	"fmt"

	"stories-api/pkg/db"
	"stories-api/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const storySequence = "stories"

// Mongo is the storage gateway backed by MongoDB. Ids come from a
// sequence document in the counters collection, so they are never reused.
type Mongo struct {
	stories  *mongo.Collection
	counters *mongo.Collection
}

// NewMongo creates a gateway over a connected MongoClient.
func NewMongo(client *db.MongoClient) (*Mongo, error) {
	if client == nil || client.Stories() == nil || client.Counters() == nil {
		return nil, fmt.Errorf("mongo client not connected")
	}
	return &Mongo{
		stories:  client.Stories(),
		counters: client.Counters(),
	}, nil
}

// FetchAll returns the top ranked stories.
func (m *Mongo) FetchAll(ctx context.Context) ([]domain.Story, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "votes", Value: -1}, {Key: "createdOn", Value: -1}}).
		SetLimit(FetchLimit)

	cursor, err := m.stories.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, storageErr("fetch all", err)
	}
	defer cursor.Close(ctx)

	stories := make([]domain.Story, 0, FetchLimit)
	if err := cursor.All(ctx, &stories); err != nil {
		return nil, storageErr("fetch all", fmt.Errorf("decode stories: %w", err))
	}
	return stories, nil
}

// FetchByID returns a single story by id.
func (m *Mongo) FetchByID(ctx context.Context, id int64) (domain.Story, bool, error) {
	var s domain.Story
	err := m.stories.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Story{}, false, nil
		}
		return domain.Story{}, false, storageErr("fetch by id", err)
	}
	return s, true, nil
}

// Insert stores a new story under the next id of the sequence and reads it back.
// createdOn is stamped by the server with $currentDate, like the column
// default on Postgres.
func (m *Mongo) Insert(ctx context.Context, url, title string) (domain.Story, error) {
	id, err := m.nextID(ctx)
	if err != nil {
		return domain.Story{}, storageErr("insert", fmt.Errorf("next id: %w", err))
	}

	update := bson.M{
		"$setOnInsert": bson.M{"url": url, "title": title, "votes": int64(0)},
		"$currentDate": bson.M{"createdOn": true},
	}
	res, err := m.stories.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return domain.Story{}, storageErr("insert", err)
	}
	if res.UpsertedCount != 1 {
		return domain.Story{}, storageErr("insert", fmt.Errorf("story %d already exists", id))
	}

	s, ok, err := m.FetchByID(ctx, id)
	if err != nil {
		return domain.Story{}, err
	}
	if !ok {
		return domain.Story{}, storageErr("insert", fmt.Errorf("story %d missing after insert", id))
	}
	return s, nil
}

// UpVote adds one vote with $inc. An unknown id matches nothing and
// reports ok == false.
func (m *Mongo) UpVote(ctx context.Context, id int64) (domain.Story, bool, error) {
	_, err := m.stories.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"votes": 1}})
	if err != nil {
		return domain.Story{}, false, storageErr("up vote", err)
	}
	return m.FetchByID(ctx, id)
}

// nextID atomically advances the story sequence and returns the new value.
func (m *Mongo) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var seq struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": storySequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Seq, nil
}
