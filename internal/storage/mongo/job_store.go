// Package mongo persists job records in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
	"github.com/JakeFAU/atlas-jobs/internal/salary"
)

// Config locates the jobs collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// collection is the slice of *mongo.Collection the store needs.
type collection interface {
	FindOne(ctx context.Context, filter any) *mongo.SingleResult
	InsertOne(ctx context.Context, doc any) error
	UpdateOne(ctx context.Context, filter, update any) (int64, error)
	Find(ctx context.Context, filter any, opts *options.FindOptions) (*mongo.Cursor, error)
	CreateIndexes(ctx context.Context, models []mongo.IndexModel) error
}

type driverCollection struct {
	coll *mongo.Collection
}

func (d driverCollection) FindOne(ctx context.Context, filter any) *mongo.SingleResult {
	return d.coll.FindOne(ctx, filter)
}

func (d driverCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := d.coll.InsertOne(ctx, doc)
	return err
}

func (d driverCollection) UpdateOne(ctx context.Context, filter, update any) (int64, error) {
	res, err := d.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (d driverCollection) Find(ctx context.Context, filter any, opts *options.FindOptions) (*mongo.Cursor, error) {
	return d.coll.Find(ctx, filter, opts)
}

func (d driverCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) error {
	_, err := d.coll.Indexes().CreateMany(ctx, models)
	return err
}

// JobStore implements jobs.Store on MongoDB.
type JobStore struct {
	client *mongo.Client
	coll   collection
}

// Connect dials MongoDB and returns a store bound to the configured collection.
func Connect(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("database.uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "atlas"
	}
	if cfg.Collection == "" {
		cfg.Collection = "jobs"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	return &JobStore{client: client, coll: driverCollection{coll: coll}}, nil
}

func newWithCollection(coll collection) *JobStore {
	return &JobStore{coll: coll}
}

// jobDocument is the stored shape. Field names follow the camelCase used by
// the listing API.
type jobDocument struct {
	ID           string            `bson:"_id"`
	Title        string            `bson:"title"`
	Company      string            `bson:"company"`
	Logo         string            `bson:"logo,omitempty"`
	Description  string            `bson:"description"`
	Salary       string            `bson:"salary,omitempty"`
	SalaryRange  *salary.Range     `bson:"salaryRange,omitempty"`
	Location     string            `bson:"location,omitempty"`
	JobType      string            `bson:"jobType,omitempty"`
	Category     string            `bson:"category,omitempty"`
	Remote       bool              `bson:"remote"`
	JobSignature string            `bson:"jobSignature"`
	Sources      []string          `bson:"sources"`
	SourceURLs   map[string]string `bson:"sourceUrls"`
	SourceIDs    map[string]string `bson:"sourceIds"`
	Benefits     []string          `bson:"benefits"`
	FirstSeen    time.Time         `bson:"firstSeen"`
	LastSeen     time.Time         `bson:"lastSeen"`
	UpdatedAt    time.Time         `bson:"updatedAt,omitempty"`
}

func toDocument(rec jobs.Record) jobDocument {
	doc := jobDocument{
		ID:           rec.ID,
		Title:        rec.Title,
		Company:      rec.Company,
		Logo:         rec.Logo,
		Description:  rec.Description,
		Salary:       rec.Salary,
		SalaryRange:  rec.SalaryRange,
		Location:     rec.Location,
		JobType:      rec.JobType,
		Category:     rec.Category,
		Remote:       rec.Remote,
		JobSignature: rec.JobSignature,
		Sources:      make([]string, 0, len(rec.Sources)),
		SourceURLs:   toStringMap(rec.SourceURLs),
		SourceIDs:    toStringMap(rec.SourceIDs),
		Benefits:     rec.Benefits,
		FirstSeen:    rec.FirstSeen,
		LastSeen:     rec.LastSeen,
		UpdatedAt:    rec.UpdatedAt,
	}
	if doc.Benefits == nil {
		doc.Benefits = []string{}
	}
	for _, src := range rec.Sources {
		doc.Sources = append(doc.Sources, string(src))
	}
	return doc
}

func (d jobDocument) record() jobs.Record {
	rec := jobs.Record{
		ID:           d.ID,
		Title:        d.Title,
		Company:      d.Company,
		Logo:         d.Logo,
		Description:  d.Description,
		Salary:       d.Salary,
		SalaryRange:  d.SalaryRange,
		Location:     d.Location,
		JobType:      d.JobType,
		Category:     d.Category,
		Remote:       d.Remote,
		JobSignature: d.JobSignature,
		SourceURLs:   fromStringMap(d.SourceURLs),
		SourceIDs:    fromStringMap(d.SourceIDs),
		Benefits:     d.Benefits,
		FirstSeen:    d.FirstSeen,
		LastSeen:     d.LastSeen,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, src := range d.Sources {
		rec.Sources = append(rec.Sources, jobs.Source(src))
	}
	return rec
}

func toStringMap(in map[jobs.Source]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func fromStringMap(in map[string]string) map[jobs.Source]string {
	out := make(map[jobs.Source]string, len(in))
	for k, v := range in {
		out[jobs.Source(k)] = v
	}
	return out
}

// EnsureIndexes creates the signature, recency and filter indexes.
func (s *JobStore) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "jobSignature", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "lastSeen", Value: -1}}},
		{Keys: bson.D{{Key: "sources", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "jobType", Value: 1}}},
		{Keys: bson.D{{Key: "remote", Value: 1}}},
	}
	if err := s.coll.CreateIndexes(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// FindBySignature implements jobs.Store.
func (s *JobStore) FindBySignature(ctx context.Context, sig string) (jobs.Record, error) {
	return s.findOne(ctx, bson.M{"jobSignature": sig})
}

// Get implements jobs.Store.
func (s *JobStore) Get(ctx context.Context, id string) (jobs.Record, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *JobStore) findOne(ctx context.Context, filter bson.M) (jobs.Record, error) {
	var doc jobDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return jobs.Record{}, jobs.ErrNotFound
		}
		return jobs.Record{}, fmt.Errorf("find job: %w", err)
	}
	return doc.record(), nil
}

// Insert implements jobs.Store.
func (s *JobStore) Insert(ctx context.Context, rec jobs.Record) error {
	if err := s.coll.InsertOne(ctx, toDocument(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert %q: %w", rec.JobSignature, jobs.ErrDuplicate)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update sets the refreshed content fields, adds the record's sources to the
// stored set and stamps updatedAt server side. _id and firstSeen are never
// written.
func (s *JobStore) Update(ctx context.Context, rec jobs.Record) error {
	doc := toDocument(rec)
	set := bson.M{
		"lastSeen":    doc.LastSeen,
		"description": doc.Description,
		"sourceUrls":  doc.SourceURLs,
		"sourceIds":   doc.SourceIDs,
	}
	if doc.Salary != "" {
		set["salary"] = doc.Salary
	}
	if doc.Logo != "" {
		set["logo"] = doc.Logo
	}
	if doc.SalaryRange != nil {
		set["salaryRange"] = doc.SalaryRange
	}
	update := bson.M{
		"$set":         set,
		"$addToSet":    bson.M{"sources": bson.M{"$each": doc.Sources}},
		"$currentDate": bson.M{"updatedAt": true},
	}
	matched, err := s.coll.UpdateOne(ctx, bson.M{"jobSignature": rec.JobSignature}, update)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if matched == 0 {
		return fmt.Errorf("update %q: %w", rec.JobSignature, jobs.ErrNotFound)
	}
	return nil
}

// List implements jobs.Store.
func (s *JobStore) List(ctx context.Context, q jobs.Query) ([]jobs.Record, error) {
	filter := queryFilter(q)
	opts := options.Find().SetSort(bson.D{{Key: "lastSeen", Value: -1}, {Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find jobs: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := []jobs.Record{}
	for cur.Next(ctx) {
		var doc jobDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		out = append(out, doc.record())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func queryFilter(q jobs.Query) bson.M {
	filter := bson.M{}
	if !q.Since.IsZero() {
		filter["lastSeen"] = bson.M{"$gte": q.Since}
	}
	if q.Source != "" {
		filter["sources"] = string(q.Source)
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.JobType != "" {
		filter["jobType"] = q.JobType
	}
	if q.Remote != nil {
		filter["remote"] = *q.Remote
	}
	return filter
}

// Close disconnects the client when the store owns one.
func (s *JobStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
