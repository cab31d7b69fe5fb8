// Package mongo implements the storage interfaces on MongoDB.
//
// A rebuild inserts the new generation into a staging collection and renames
// it over the live one with dropTarget set. The rename is the only moment
// readers can switch generations, so they never observe a mix of old and new
// rows within one collection.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/webseek/webseek/internal/store"
	"github.com/webseek/webseek/pkg/config"
)

const defaultBatchSize = 1000

const (
	pagesCollection     = "pages"
	documentsCollection = "documents"
	termsCollection     = "index_terms"
)

// Store implements store.Store on a MongoDB database.
type Store struct {
	client    *driver.Client
	db        *driver.Database
	batchSize int
	logger    *slog.Logger
}

// New connects to MongoDB and verifies the connection with a ping.
func New(ctx context.Context, cfg config.MongoConfig, batchSize int) (*Store, error) {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := driver.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return &Store{
		client:    client,
		db:        client.Database(cfg.Database),
		batchSize: batchSize,
		logger:    slog.Default().With("component", "mongo-store"),
	}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// EnsureSchema creates the indexes the store relies on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Collection(pagesCollection).Indexes().CreateOne(ctx, driver.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensuring page url index: %w", err)
	}
	return nil
}

func (s *Store) ListPages(ctx context.Context) ([]store.Page, error) {
	cur, err := s.db.Collection(pagesCollection).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	var pages []store.Page
	if err := cur.All(ctx, &pages); err != nil {
		return nil, fmt.Errorf("decoding pages: %w", err)
	}
	return pages, nil
}

func (s *Store) UpsertPage(ctx context.Context, p store.Page) error {
	_, err := s.db.Collection(pagesCollection).UpdateOne(ctx,
		bson.M{"url": p.URL},
		bson.M{"$set": p},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upserting page %s: %w", p.URL, err)
	}
	return nil
}

func (s *Store) PageExists(ctx context.Context, url string) (bool, error) {
	err := s.db.Collection(pagesCollection).FindOne(ctx,
		bson.M{"url": url},
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Err()
	if err == driver.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking page %s: %w", url, err)
	}
	return true, nil
}

func (s *Store) ReplaceDocuments(ctx context.Context, docs []store.Document) error {
	start := time.Now()
	rows := make([]any, len(docs))
	for i, d := range docs {
		rows[i] = d
	}
	if err := s.stageAndSwap(ctx, documentsCollection, rows, nil); err != nil {
		return err
	}
	s.logger.Info("documents replaced",
		"count", len(docs),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (s *Store) GetDocuments(ctx context.Context, ids []string) (map[string]store.Document, error) {
	found := make(map[string]store.Document, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	cur, err := s.db.Collection(documentsCollection).Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	var docs []store.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}
	for _, d := range docs {
		found[d.ID] = d
	}
	return found, nil
}

func (s *Store) ReplaceTerms(ctx context.Context, entries []store.TermEntry) error {
	start := time.Now()
	rows := make([]any, len(entries))
	for i, e := range entries {
		rows[i] = e
	}
	// The term index is created on the staging collection so it travels with
	// the rename.
	termIndex := driver.IndexModel{
		Keys:    bson.D{{Key: "term", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if err := s.stageAndSwap(ctx, termsCollection, rows, &termIndex); err != nil {
		return err
	}
	s.logger.Info("terms replaced",
		"count", len(entries),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (s *Store) FindTerms(ctx context.Context, terms []string) ([]store.TermEntry, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	cur, err := s.db.Collection(termsCollection).Find(ctx,
		bson.M{"term": bson.M{"$in": terms}})
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	var entries []store.TermEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decoding terms: %w", err)
	}
	return entries, nil
}

// stageAndSwap fills <name>_staging with rows and renames it over name.
func (s *Store) stageAndSwap(ctx context.Context, name string, rows []any, index *driver.IndexModel) error {
	staging := name + "_staging"
	coll := s.db.Collection(staging)

	// A leftover staging collection from an aborted run is stale; discard it.
	if err := coll.Drop(ctx); err != nil {
		return fmt.Errorf("dropping staging collection %s: %w", staging, err)
	}

	if len(rows) == 0 {
		// Renaming requires the source to exist.
		if err := s.db.CreateCollection(ctx, staging); err != nil {
			return fmt.Errorf("creating staging collection %s: %w", staging, err)
		}
	}
	for from := 0; from < len(rows); from += s.batchSize {
		to := from + s.batchSize
		if to > len(rows) {
			to = len(rows)
		}
		if _, err := coll.InsertMany(ctx, rows[from:to]); err != nil {
			return fmt.Errorf("inserting into %s: %w", staging, err)
		}
	}

	if index != nil {
		if _, err := coll.Indexes().CreateOne(ctx, *index); err != nil {
			return fmt.Errorf("indexing %s: %w", staging, err)
		}
	}

	cmd := bson.D{
		{Key: "renameCollection", Value: s.db.Name() + "." + staging},
		{Key: "to", Value: s.db.Name() + "." + name},
		{Key: "dropTarget", Value: true},
	}
	if err := s.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("renaming %s over %s: %w", staging, name, err)
	}
	return nil
}
