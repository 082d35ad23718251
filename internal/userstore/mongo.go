package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultConnectTimeout = 10 * time.Second

// MongoConfig holds connection settings for the users database.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore implements Store over a MongoDB users collection.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
}

// getProjection excludes credentials from single-user reads.
var getProjection = bson.M{"password": 0}

// profileProjection limits rebuild reads to the fields that feed the
// embedding text, plus the id.
var profileProjection = bson.M{
	"skillsOffered":       1,
	"skillsRequired":      1,
	"fieldOfStudy":        1,
	"researchInterests":   1,
	"learningPreferences": 1,
	"subjectStrengths":    1,
	"academicGoals":       1,
	"studyHabits":         1,
	"institution":         1,
	"degree":              1,
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("userstore: mongo URI is required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		users:  client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// GetByID fetches one user by its hex object id.
func (s *MongoStore) GetByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid object id", ErrNotFound, id)
	}

	var u User
	err = s.users.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(getProjection)).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}

	u.ensureDefaults()
	return &u, nil
}

// ListProfiles returns every user with the embedding-relevant fields only.
// Results come back in natural collection order, which is stable for an
// unchanged collection and makes consecutive rebuilds deterministic.
func (s *MongoStore) ListProfiles(ctx context.Context) ([]User, error) {
	cur, err := s.users.Find(ctx, bson.M{},
		options.Find().SetProjection(profileProjection))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	for i := range users {
		users[i].ensureDefaults()
	}

	return users, nil
}

// Ping verifies the connection is alive.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
