package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps articles in one MongoDB collection with a unique index on
// the article id. Mongo's own _id is never exposed.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to cfg.Mongo.URI and verifies the connection.
func NewMongoStore(ctx context.Context, cfg *Config) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	coll := client.Database(cfg.Mongo.Database).Collection(cfg.Store.Table)
	return newMongoStore(client, coll), nil
}

func newMongoStore(client *mongo.Client, coll *mongo.Collection) *MongoStore {
	return &MongoStore{client: client, collection: coll}
}

func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create id index: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Article, error) {
	var a Article
	err := s.collection.FindOne(ctx, bson.M{"id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return fixupArticle(&a), nil
}

// Put replaces the document with the same id, inserting it when absent.
func (s *MongoStore) Put(ctx context.Context, article *Article) error {
	Normalize(article)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"id": article.ID}, article,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to put article: %w", err)
	}
	return nil
}

// setDocument is the $set document for patch.
func setDocument(patch Patch, now time.Time) bson.D {
	set := bson.D{{Key: "updatedAt", Value: now.UTC()}}
	if patch.Title != nil {
		set = append(set,
			bson.E{Key: "title", Value: *patch.Title},
			bson.E{Key: "lower_case_title", Value: strings.ToLower(*patch.Title)})
	}
	if patch.URL != nil {
		set = append(set, bson.E{Key: "url", Value: *patch.URL})
	}
	if patch.Tags != nil {
		tags := append([]string{}, (*patch.Tags)...)
		set = append(set,
			bson.E{Key: "tags", Value: tags},
			bson.E{Key: "lower_case_tags", Value: LowerAll(tags)})
	}
	if patch.Source != nil {
		set = append(set, bson.E{Key: "source", Value: *patch.Source})
	}
	return set
}

func (s *MongoStore) Update(ctx context.Context, id string, patch Patch, now time.Time) (*Article, error) {
	var a Article
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"id": id},
		bson.D{{Key: "$set", Value: setDocument(patch, now)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update article: %w", err)
	}
	return fixupArticle(&a), nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) (*Article, error) {
	var a Article
	err := s.collection.FindOneAndDelete(ctx, bson.M{"id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete article: %w", err)
	}
	return fixupArticle(&a), nil
}

// mongoFilter translates f into a query document. The title prefix becomes an
// anchored regular expression over the literal prefix.
func mongoFilter(f Filter) bson.M {
	query := bson.M{}
	if f.TitlePrefix != "" {
		query["lower_case_title"] = bson.M{"$regex": "^" + regexp.QuoteMeta(f.TitlePrefix)}
	}
	if f.Tag != "" {
		query["lower_case_tags"] = f.Tag
	}
	return query
}

func (s *MongoStore) Scan(ctx context.Context, filter Filter) ([]Article, error) {
	cursor, err := s.collection.Find(ctx, mongoFilter(filter),
		options.Find().SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to scan articles: %w", err)
	}
	defer cursor.Close(ctx)

	articles := []Article{}
	for cursor.Next(ctx) {
		var a Article
		if err := cursor.Decode(&a); err != nil {
			return nil, fmt.Errorf("failed to decode article: %w", err)
		}
		articles = append(articles, *fixupArticle(&a))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return articles, nil
}

func (s *MongoStore) ScanIDs(ctx context.Context) (map[string]struct{}, error) {
	cursor, err := s.collection.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"id": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to scan article ids: %w", err)
	}
	defer cursor.Close(ctx)

	ids := make(map[string]struct{})
	for cursor.Next(ctx) {
		var row struct {
			ID string `bson:"id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode article id: %w", err)
		}
		ids[row.ID] = struct{}{}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return ids, nil
}

// fixupArticle restores the invariants BSON decoding loses: empty tag lists
// instead of nil and UTC timestamps.
func fixupArticle(a *Article) *Article {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.LowerCaseTags == nil {
		a.LowerCaseTags = []string{}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a
}
