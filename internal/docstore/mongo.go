package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/pkg/logger"
)

var dupIndexPattern = regexp.MustCompile(`index:\s+(\S+)\s+dup key`)

// MongoStore implements Store against a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger

	mu      sync.RWMutex
	indexes map[string]map[string][]string // collection -> index name -> fields
}

// OpenMongo connects to uri and verifies the primary is reachable.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("docstore: mongodb uri is required")
	}
	if strings.TrimSpace(database) == "" {
		return nil, errors.New("docstore: mongodb database is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docstore: connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("docstore: ping mongodb: %w", err)
	}
	return NewMongoStore(client, database), nil
}

// NewMongoStore wraps an existing client.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		db:      client.Database(database),
		log:     logger.WithModule("docstore"),
		indexes: map[string]map[string][]string{},
	}
}

func (s *MongoStore) Insert(ctx context.Context, collection string, doc bson.M) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return s.translate(collection, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, collection string, id primitive.ObjectID, change Change) error {
	if change.Empty() {
		return nil
	}
	update := bson.M{}
	if len(change.Set) > 0 {
		update["$set"] = change.Set
	}
	if len(change.Unset) > 0 {
		unset := bson.M{}
		for _, path := range change.Unset {
			unset[path] = ""
		}
		update["$unset"] = unset
	}

	result, err := s.db.Collection(collection).UpdateByID(ctx, id, update)
	if err != nil {
		return s.translate(collection, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter bson.M, opts FindOptions) (bson.M, error) {
	findOpts := options.FindOne()
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, orEmpty(filter), findOpts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	return NormalizeDocument(doc), nil
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error) {
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, orEmpty(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("docstore: decode %s: %w", collection, err)
	}
	for i := range docs {
		docs[i] = NormalizeDocument(docs[i])
	}
	return docs, nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	count, err := s.db.Collection(collection).CountDocuments(ctx, orEmpty(filter))
	if err != nil {
		return 0, fmt.Errorf("docstore: count %s: %w", collection, err)
	}
	return count, nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	result, err := s.db.Collection(collection).DeleteOne(ctx, orEmpty(filter))
	if err != nil {
		return 0, fmt.Errorf("docstore: delete %s: %w", collection, err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStore) Increment(ctx context.Context, collection string, id primitive.ObjectID, path string, delta int64) (bson.M, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bson.M
	err := s.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.M{IDField: id}, bson.M{"$inc": bson.M{path: delta}}, opts).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: increment %s.%s: %w", collection, path, err)
	}
	return NormalizeDocument(doc), nil
}

func (s *MongoStore) EnsureIndex(ctx context.Context, collection string, index Index) error {
	if len(index.Keys) == 0 {
		return errors.New("docstore: index requires at least one key")
	}
	model := mongo.IndexModel{
		Keys: index.Keys,
		Options: options.Index().
			SetName(index.IndexName()).
			SetUnique(index.Unique).
			SetSparse(index.Sparse),
	}
	name, err := s.db.Collection(collection).Indexes().CreateOne(ctx, model)
	if err != nil {
		return s.translate(collection, err)
	}
	s.rememberIndex(collection, name, index.Fields())
	s.log.Debug("index ensured", zap.String("collection", collection), zap.String("index", name))
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) translate(collection string, err error) error {
	if !isDuplicateKey(err) {
		return fmt.Errorf("docstore: write %s: %w", collection, err)
	}
	dup := &DuplicateKeyError{Collection: collection, Err: err}
	if match := dupIndexPattern.FindStringSubmatch(err.Error()); len(match) == 2 {
		dup.Index = match[1]
		dup.Fields = s.indexFields(collection, match[1])
	}
	return dup
}

func (s *MongoStore) rememberIndex(collection, name string, fields []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.indexes[collection]
	if !ok {
		byName = map[string][]string{}
		s.indexes[collection] = byName
	}
	byName[name] = fields
}

// indexFields prefers the fields of an index ensured by this store and falls
// back to parsing the generated name.
func (s *MongoStore) indexFields(collection, name string) []string {
	s.mu.RLock()
	fields, ok := s.indexes[collection][name]
	s.mu.RUnlock()
	if ok {
		return append([]string(nil), fields...)
	}
	return fieldsFromIndexName(name)
}

// fieldsFromIndexName recovers paths from generated names such as "email_1",
// "zip_code_1" or "address.city_1_price_-1". A segment naming a key
// direction ends the current path.
func fieldsFromIndexName(name string) []string {
	if name == "_id_" {
		return []string{IDField}
	}
	var (
		fields  []string
		current []string
	)
	for _, part := range strings.Split(name, "_") {
		if isIndexDirection(part) && len(current) > 0 {
			fields = append(fields, strings.Join(current, "_"))
			current = current[:0]
			continue
		}
		current = append(current, part)
	}
	return fields
}

func isIndexDirection(part string) bool {
	switch part {
	case "1", "-1", "text", "hashed", "2d", "2dsphere":
		return true
	default:
		return false
	}
}

func orEmpty(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
