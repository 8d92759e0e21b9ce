package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"medbot/internal/models"
	"medbot/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	drugsCollection  = "drugs"
	adminsCollection = "admins"
	bansCollection   = "bans"
)

// DB is the MongoDB document repository
type DB struct {
	client *mongo.Client
	drugs  *mongo.Collection
	admins *mongo.Collection
	bans   *mongo.Collection
}

// NewDB connects to MongoDB and selects the database
func NewDB(ctx context.Context, uri, database string) (*DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	return &DB{
		client: client,
		drugs:  db.Collection(drugsCollection),
		admins: db.Collection(adminsCollection),
		bans:   db.Collection(bansCollection),
	}, nil
}

// Initialize creates the indexes the repository relies on.
// The unique index on code is what rejects a second record for a barcode.
func (db *DB) Initialize(ctx context.Context) error {
	_, err := db.drugs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "contributor_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create drug indexes: %w", err)
	}

	userIndex := mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := db.admins.Indexes().CreateOne(ctx, userIndex); err != nil {
		return fmt.Errorf("failed to create admin index: %w", err)
	}
	if _, err := db.bans.Indexes().CreateOne(ctx, userIndex); err != nil {
		return fmt.Errorf("failed to create ban index: %w", err)
	}
	return nil
}

// DrugExists reports whether a drug with the code is stored
func (db *DB) DrugExists(ctx context.Context, code string) (bool, error) {
	n, err := db.drugs.CountDocuments(ctx, bson.D{{Key: "code", Value: code}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check drug: %w", err)
	}
	return n > 0, nil
}

// GetDrug returns the drug with the code
func (db *DB) GetDrug(ctx context.Context, code string) (*models.DrugRecord, error) {
	var drug models.DrugRecord
	err := db.drugs.FindOne(ctx, bson.D{{Key: "code", Value: code}}).Decode(&drug)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drug: %w", err)
	}
	return &drug, nil
}

// InsertDrug stores a new drug
func (db *DB) InsertDrug(ctx context.Context, drug models.DrugRecord) error {
	_, err := db.drugs.InsertOne(ctx, drug)
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert drug: %w", err)
	}
	return nil
}

// AppendReport adds a complaint entry to the drug's report in a single
// server-side update, so concurrent complaints never overwrite each other
func (db *DB) AppendReport(ctx context.Context, code, entry string) error {
	literal := bson.D{{Key: "$literal", Value: entry}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "report", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$report", ""}}}, ""}}},
			literal,
			bson.D{{Key: "$concat", Value: bson.A{"$report", models.ReportSeparator, literal}}},
		}}}}}}},
	}

	res, err := db.drugs.UpdateOne(ctx, bson.D{{Key: "code", Value: code}}, update)
	if err != nil {
		return fmt.Errorf("failed to append report: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SearchDrugs matches the query as a case-insensitive substring of
// name, active ingredient or description
func (db *DB) SearchDrugs(ctx context.Context, query string, limit int) ([]models.DrugRecord, error) {
	pattern := bson.D{{Key: "$regex", Value: regexp.QuoteMeta(query)}, {Key: "$options", Value: "i"}}
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "name", Value: pattern}},
		bson.D{{Key: "active_ingredient", Value: pattern}},
		bson.D{{Key: "description", Value: pattern}},
	}}}
	return db.findDrugs(ctx, filter, limit)
}

// ListReportedDrugs returns drugs with at least one complaint
func (db *DB) ListReportedDrugs(ctx context.Context, limit int) ([]models.DrugRecord, error) {
	filter := bson.D{{Key: "report", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: ""}}}}
	return db.findDrugs(ctx, filter, limit)
}

// ListDrugsByContributor returns drugs added by the user
func (db *DB) ListDrugsByContributor(ctx context.Context, userID int64) ([]models.DrugRecord, error) {
	return db.findDrugs(ctx, bson.D{{Key: "contributor_id", Value: userID}}, 0)
}

// CountDrugsByContributor counts drugs added by the user
func (db *DB) CountDrugsByContributor(ctx context.Context, userID int64) (int, error) {
	n, err := db.drugs.CountDocuments(ctx, bson.D{{Key: "contributor_id", Value: userID}})
	if err != nil {
		return 0, fmt.Errorf("failed to count drugs: %w", err)
	}
	return int(n), nil
}

func (db *DB) findDrugs(ctx context.Context, filter bson.D, limit int) ([]models.DrugRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "code", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := db.drugs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find drugs: %w", err)
	}
	defer cursor.Close(ctx)

	var drugs []models.DrugRecord
	if err := cursor.All(ctx, &drugs); err != nil {
		return nil, fmt.Errorf("failed to decode drugs: %w", err)
	}
	return drugs, nil
}

// GetAdmin returns the admin record of the user
func (db *DB) GetAdmin(ctx context.Context, userID int64) (*models.AdminRecord, error) {
	var admin models.AdminRecord
	err := db.admins.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&admin)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return &admin, nil
}

// InsertAdmin registers a new admin
func (db *DB) InsertAdmin(ctx context.Context, admin models.AdminRecord) error {
	_, err := db.admins.InsertOne(ctx, admin)
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert admin: %w", err)
	}
	return nil
}

// GetBan returns the ban record of the user
func (db *DB) GetBan(ctx context.Context, userID int64) (*models.BanRecord, error) {
	var ban models.BanRecord
	err := db.bans.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&ban)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ban: %w", err)
	}
	return &ban, nil
}

// SaveBan creates or replaces the ban of the user
func (db *DB) SaveBan(ctx context.Context, ban models.BanRecord) error {
	_, err := db.bans.ReplaceOne(ctx, bson.D{{Key: "user_id", Value: ban.UserID}}, ban, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save ban: %w", err)
	}
	return nil
}

// Close disconnects the client
func (db *DB) Close() error {
	if db.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}
