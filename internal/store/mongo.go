package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AnalysisCollection holds one document per symbol.
const AnalysisCollection = "stock_analysis"

const connectTimeout = 30 * time.Second

var _ Store = (*MongoStore)(nil)

// MongoStore keeps analyses in a MongoDB collection keyed by symbol.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *slog.Logger
}

// NewMongoStore connects to uri, verifies the connection and ensures the
// collection indexes exist.
func NewMongoStore(ctx context.Context, uri, database string, log *slog.Logger) (*MongoStore, error) {
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetConnectTimeout(connectTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	s := newMongoStore(client.Database(database), log)
	s.client = client
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	log.Info("connected to mongodb", "database", database)
	return s, nil
}

func newMongoStore(db *mongo.Database, log *slog.Logger) *MongoStore {
	if log == nil {
		log = slog.Default()
	}
	return &MongoStore{
		coll: db.Collection(AnalysisCollection),
		log:  log,
	}
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "symbol", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "analyzed_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	return nil
}

// LastAnalyzed returns the analysis timestamp stored for symbol.
func (s *MongoStore) LastAnalyzed(ctx context.Context, symbol string) (time.Time, bool, error) {
	var doc struct {
		AnalyzedAt time.Time `bson:"analyzed_at"`
	}
	opts := options.FindOne().SetProjection(bson.M{"analyzed_at": 1})
	err := s.coll.FindOne(ctx, bson.M{"symbol": symbol}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("looking up %s: %w", symbol, err)
	}
	return doc.AnalyzedAt, true, nil
}

// UpsertAnalysis replaces the document for a.Symbol, inserting it if absent.
func (s *MongoStore) UpsertAnalysis(ctx context.Context, a Analysis) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"symbol": a.Symbol}, a, opts); err != nil {
		return fmt.Errorf("saving analysis for %s: %w", a.Symbol, err)
	}
	return nil
}

// GetAnalysis returns the analysis for symbol or ErrNotFound.
func (s *MongoStore) GetAnalysis(ctx context.Context, symbol string) (*Analysis, error) {
	var a Analysis
	err := s.coll.FindOne(ctx, bson.M{"symbol": symbol}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading analysis for %s: %w", symbol, err)
	}
	return &a, nil
}

// ListAnalyses returns one page of analyses matching f and the total match
// count.
func (s *MongoStore) ListAnalyses(ctx context.Context, f Filter) ([]Analysis, int64, error) {
	f = f.Normalize()
	query := mongoFilter(f)

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("counting analyses: %w", err)
	}

	opts := options.Find().
		SetSort(mongoSort(f)).
		SetSkip(int64(f.Skip())).
		SetLimit(int64(f.PageSize))

	out, err := s.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// AllAnalyses returns every stored analysis.
func (s *MongoStore) AllAnalyses(ctx context.Context) ([]Analysis, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoStore) find(ctx context.Context, query bson.M, opts ...*options.FindOptions) ([]Analysis, error) {
	cursor, err := s.coll.Find(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("querying analyses: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Analysis
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding analyses: %w", err)
	}
	return out, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func mongoFilter(f Filter) bson.M {
	query := bson.M{}
	if r := rangeOf(f.MinPrice, f.MaxPrice); len(r) > 0 {
		query["price"] = r
	}
	if r := rangeOf(f.MinVolume, nil); len(r) > 0 {
		query["volume"] = r
	}
	if r := rangeOf(f.MinMarketCap, f.MaxMarketCap); len(r) > 0 {
		query["market_cap"] = r
	}
	if r := rangeOf(f.MinRSI, f.MaxRSI); len(r) > 0 {
		query["rsi"] = r
	}
	if r := rangeOf(f.MinChangePercent, f.MaxChangePercent); len(r) > 0 {
		query["price_change_percent"] = r
	}
	if f.OnlyOversold {
		query["is_oversold"] = true
	}
	if f.OnlyOverbought {
		query["is_overbought"] = true
	}
	return query
}

// mongoSort orders by the requested field, breaking ties by symbol.
func mongoSort(f Filter) bson.D {
	order := -1
	if f.SortOrder == "asc" {
		order = 1
	}
	field := sortable[f.SortBy]
	if field == "symbol" {
		return bson.D{{Key: "symbol", Value: order}}
	}
	return bson.D{{Key: field, Value: order}, {Key: "symbol", Value: 1}}
}

func rangeOf(lo, hi *float64) bson.M {
	r := bson.M{}
	if lo != nil {
		r["$gte"] = *lo
	}
	if hi != nil {
		r["$lte"] = *hi
	}
	return r
}
