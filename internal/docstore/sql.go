package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/estatehub/pkg/logger"
)

// documentRecord stores one document as canonical Extended JSON.
type documentRecord struct {
	Collection string         `gorm:"primaryKey;size:128"`
	ID         string         `gorm:"primaryKey;size:24"`
	Body       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRecord) TableName() string { return "documents" }

// indexRecord persists declared indexes so unique constraints survive restarts.
type indexRecord struct {
	Collection string         `gorm:"primaryKey;size:128"`
	Name       string         `gorm:"primaryKey;size:128"`
	Keys       datatypes.JSON `gorm:"not null"`
	Unique     bool           `gorm:"default:false"`
	Sparse     bool           `gorm:"default:false"`
	CreatedAt  time.Time
}

func (indexRecord) TableName() string { return "document_indexes" }

// keyRecord materialises one unique index entry; the composite unique
// constraint makes the database reject duplicates.
type keyRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	Collection string `gorm:"size:128;not null;uniqueIndex:idx_document_keys_value"`
	IndexName  string `gorm:"size:128;not null;uniqueIndex:idx_document_keys_value"`
	Digest     string `gorm:"size:64;not null;uniqueIndex:idx_document_keys_value"`
	DocumentID string `gorm:"size:24;not null;index"`
}

func (keyRecord) TableName() string { return "document_keys" }

// BeforeCreate ensures a UUID is present before persisting.
func (k *keyRecord) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

type indexKey struct {
	Path  string `json:"path"`
	Order int    `json:"order"`
}

// SQLOption customises the SQL backed store.
type SQLOption func(*SQLStore)

// WithSQLLogger overrides the store logger.
func WithSQLLogger(log *zap.Logger) SQLOption {
	return func(s *SQLStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSQLClock injects a custom time source.
func WithSQLClock(clock func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SQLStore implements Store on top of any gorm dialect. Documents are kept as
// Extended JSON so BSON types (ObjectId, Decimal128, dates) round-trip; filters
// are evaluated in process with Match.
type SQLStore struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time

	mu      sync.RWMutex
	indexes map[string][]Index
}

// NewSQLStore migrates the document tables and loads persisted index declarations.
func NewSQLStore(ctx context.Context, db *gorm.DB, opts ...SQLOption) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("docstore: db is required")
	}

	store := &SQLStore{
		db:      db,
		log:     logger.WithModule("docstore"),
		now:     time.Now,
		indexes: make(map[string][]Index),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := db.WithContext(ctx).AutoMigrate(&documentRecord{}, &indexRecord{}, &keyRecord{}); err != nil {
		return nil, fmt.Errorf("docstore: migrate: %w", err)
	}
	if err := store.loadIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) loadIndexes(ctx context.Context) error {
	var records []indexRecord
	if err := s.db.WithContext(ctx).Order("collection, name").Find(&records).Error; err != nil {
		return fmt.Errorf("docstore: load indexes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		var keys []indexKey
		if err := json.Unmarshal(record.Keys, &keys); err != nil {
			return fmt.Errorf("docstore: decode index %s: %w", record.Name, err)
		}
		index := Index{Name: record.Name, Unique: record.Unique, Sparse: record.Sparse}
		for _, key := range keys {
			index.Keys = append(index.Keys, bson.E{Key: key.Path, Value: key.Order})
		}
		s.indexes[record.Collection] = append(s.indexes[record.Collection], index)
	}
	return nil
}

// Insert stores a new document.
func (s *SQLStore) Insert(ctx context.Context, collection string, doc bson.M) error {
	id, err := DocumentID(doc)
	if err != nil {
		return err
	}
	body, err := encodeBody(doc)
	if err != nil {
		return err
	}

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := documentRecord{
			Collection: collection,
			ID:         id.Hex(),
			Body:       body,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return s.translate(collection, Index{Name: "_id_", Keys: bson.D{{Key: IDField, Value: 1}}}, err)
		}
		return s.writeKeys(tx, collection, id.Hex(), doc)
	})
}

// Update applies a partial change to the document identified by id.
func (s *SQLStore) Update(ctx context.Context, collection string, id primitive.ObjectID, change Change) error {
	if change.Empty() {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := s.loadForUpdate(tx, collection, id)
		if err != nil {
			return err
		}
		for path, value := range change.Set {
			Assign(doc, path, Normalize(value))
		}
		for _, path := range change.Unset {
			Remove(doc, path)
		}
		return s.rewrite(tx, collection, id, doc)
	})
}

// Increment atomically adjusts a numeric path inside one transaction.
func (s *SQLStore) Increment(ctx context.Context, collection string, id primitive.ObjectID, path string, delta int64) (bson.M, error) {
	var updated bson.M
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := s.loadForUpdate(tx, collection, id)
		if err != nil {
			return err
		}

		current, found := Lookup(doc, path)
		var next any = delta
		if found && current != nil {
			value, ok := toFloat(current)
			if !ok {
				return fmt.Errorf("docstore: cannot increment non-numeric path %s", path)
			}
			if value == math.Trunc(value) {
				next = int64(value) + delta
			} else {
				next = value + float64(delta)
			}
		}
		Assign(doc, path, next)

		if err := s.rewrite(tx, collection, id, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// FindOne returns the first document matching filter.
func (s *SQLStore) FindOne(ctx context.Context, collection string, filter bson.M, opts FindOptions) (bson.M, error) {
	opts.Limit = 1
	docs, err := s.Find(ctx, collection, filter, opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Find returns every document matching filter, ordered by insertion unless a sort is given.
func (s *SQLStore) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error) {
	docs, err := s.scan(s.db.WithContext(ctx), collection, filter)
	if err != nil {
		return nil, err
	}
	SortDocuments(docs, opts.Sort)
	return Window(docs, opts), nil
}

// Count returns the number of documents matching filter.
func (s *SQLStore) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	docs, err := s.scan(s.db.WithContext(ctx), collection, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// DeleteOne removes the first document matching filter.
func (s *SQLStore) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docs, err := s.scan(tx, collection, filter)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}
		id, err := DocumentID(docs[0])
		if err != nil {
			return err
		}

		if err := tx.Where("collection = ? AND document_id = ?", collection, id.Hex()).Delete(&keyRecord{}).Error; err != nil {
			return fmt.Errorf("docstore: delete keys: %w", err)
		}
		result := tx.Where("collection = ? AND id = ?", collection, id.Hex()).Delete(&documentRecord{})
		if result.Error != nil {
			return fmt.Errorf("docstore: delete document: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

// EnsureIndex records the index and, for unique indexes, backfills keys for
// existing documents. Existing duplicates make the call fail.
func (s *SQLStore) EnsureIndex(ctx context.Context, collection string, index Index) error {
	if len(index.Keys) == 0 {
		return errors.New("docstore: index requires at least one key")
	}
	index.Name = index.IndexName()

	keys := make([]indexKey, 0, len(index.Keys))
	for _, key := range index.Keys {
		keys = append(keys, indexKey{Path: key.Key, Order: direction(key.Value)})
	}
	rawKeys, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("docstore: encode index keys: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := indexRecord{
			Collection: collection,
			Name:       index.Name,
			Keys:       datatypes.JSON(rawKeys),
			Unique:     index.Unique,
			Sparse:     index.Sparse,
			CreatedAt:  s.now(),
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
			return fmt.Errorf("docstore: save index: %w", err)
		}

		if err := tx.Where("collection = ? AND index_name = ?", collection, index.Name).Delete(&keyRecord{}).Error; err != nil {
			return fmt.Errorf("docstore: reset index keys: %w", err)
		}
		if !index.Unique {
			return nil
		}

		docs, err := s.scan(tx, collection, nil)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			id, err := DocumentID(doc)
			if err != nil {
				return err
			}
			if err := s.insertKey(tx, collection, id.Hex(), index, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.indexes[collection]
	replaced := false
	for i := range existing {
		if existing[i].Name == index.Name {
			existing[i] = index
			replaced = true
		}
	}
	if !replaced {
		existing = append(existing, index)
	}
	s.indexes[collection] = existing

	s.log.Debug("index ensured",
		zap.String("collection", collection),
		zap.String("index", index.Name),
		zap.Bool("unique", index.Unique),
	)
	return nil
}

// Indexes returns the indexes known for collection.
func (s *SQLStore) Indexes(collection string) []Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Index(nil), s.indexes[collection]...)
}

// Ping checks connectivity of the underlying database.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) scan(tx *gorm.DB, collection string, filter bson.M) ([]bson.M, error) {
	var records []documentRecord
	if err := tx.Where("collection = ?", collection).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("docstore: scan %s: %w", collection, err)
	}

	docs := make([]bson.M, 0, len(records))
	for _, record := range records {
		doc, err := decodeBody(record.Body)
		if err != nil {
			return nil, fmt.Errorf("docstore: decode %s/%s: %w", collection, record.ID, err)
		}
		if len(filter) > 0 {
			ok, err := Match(doc, filter)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *SQLStore) loadForUpdate(tx *gorm.DB, collection string, id primitive.ObjectID) (bson.M, error) {
	var record documentRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("collection = ? AND id = ?", collection, id.Hex()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: load %s/%s: %w", collection, id.Hex(), err)
	}
	return decodeBody(record.Body)
}

func (s *SQLStore) rewrite(tx *gorm.DB, collection string, id primitive.ObjectID, doc bson.M) error {
	body, err := encodeBody(doc)
	if err != nil {
		return err
	}
	err = tx.Model(&documentRecord{}).
		Where("collection = ? AND id = ?", collection, id.Hex()).
		Updates(map[string]any{"body": body, "updated_at": s.now()}).Error
	if err != nil {
		return fmt.Errorf("docstore: write %s/%s: %w", collection, id.Hex(), err)
	}
	return s.writeKeys(tx, collection, id.Hex(), doc)
}

func (s *SQLStore) writeKeys(tx *gorm.DB, collection, id string, doc bson.M) error {
	indexes := s.Indexes(collection)
	if len(indexes) == 0 {
		return nil
	}
	if err := tx.Where("collection = ? AND document_id = ?", collection, id).Delete(&keyRecord{}).Error; err != nil {
		return fmt.Errorf("docstore: clear keys: %w", err)
	}
	for _, index := range indexes {
		if !index.Unique {
			continue
		}
		if err := s.insertKey(tx, collection, id, index, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) insertKey(tx *gorm.DB, collection, id string, index Index, doc bson.M) error {
	digest, ok, err := keyDigest(index, doc)
	if err != nil || !ok {
		return err
	}
	record := keyRecord{
		Collection: collection,
		IndexName:  index.Name,
		Digest:     digest,
		DocumentID: id,
	}
	if err := tx.Create(&record).Error; err != nil {
		return s.translate(collection, index, err)
	}
	return nil
}

func (s *SQLStore) translate(collection string, index Index, err error) error {
	if isUniqueConstraintError(err) {
		return &DuplicateKeyError{
			Collection: collection,
			Index:      index.IndexName(),
			Fields:     index.Fields(),
			Err:        err,
		}
	}
	return fmt.Errorf("docstore: write %s: %w", collection, err)
}

// keyDigest hashes the indexed values of doc. Sparse indexes skip documents
// that carry none of the indexed paths.
func keyDigest(index Index, doc bson.M) (string, bool, error) {
	values := make(bson.A, 0, len(index.Keys))
	present := false
	for _, key := range index.Keys {
		value, found := Lookup(doc, key.Key)
		if found {
			present = true
		}
		values = append(values, value)
	}
	if index.Sparse && !present {
		return "", false, nil
	}

	raw, err := bson.MarshalExtJSON(bson.M{"v": values}, true, false)
	if err != nil {
		return "", false, fmt.Errorf("docstore: encode index key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), true, nil
}

func encodeBody(doc bson.M) (datatypes.JSON, error) {
	raw, err := bson.MarshalExtJSON(doc, true, false)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func decodeBody(raw datatypes.JSON) (bson.M, error) {
	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, true, &doc); err != nil {
		return nil, err
	}
	return NormalizeDocument(doc), nil
}
