package storage

import (
	"context"
	"errors"

	"medbot/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a record with the same key already exists
	ErrDuplicate = errors.New("record already exists")
)

// Repository defines the document operations over drugs, admins and bans
type Repository interface {
	// Drug operations
	DrugExists(ctx context.Context, code string) (bool, error)
	GetDrug(ctx context.Context, code string) (*models.DrugRecord, error)
	// InsertDrug returns ErrDuplicate if a record with the same code exists
	InsertDrug(ctx context.Context, drug models.DrugRecord) error
	// AppendReport adds a tagged complaint to the drug's report field,
	// keeping every previous entry. Returns ErrNotFound for unknown codes.
	AppendReport(ctx context.Context, code, entry string) error
	SearchDrugs(ctx context.Context, query string, limit int) ([]models.DrugRecord, error)
	ListReportedDrugs(ctx context.Context, limit int) ([]models.DrugRecord, error)
	ListDrugsByContributor(ctx context.Context, userID int64) ([]models.DrugRecord, error)
	CountDrugsByContributor(ctx context.Context, userID int64) (int, error)

	// Admin operations
	GetAdmin(ctx context.Context, userID int64) (*models.AdminRecord, error)
	InsertAdmin(ctx context.Context, admin models.AdminRecord) error

	// Ban operations
	GetBan(ctx context.Context, userID int64) (*models.BanRecord, error)
	// SaveBan creates or replaces the ban of ban.UserID
	SaveBan(ctx context.Context, ban models.BanRecord) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// ActivityLog records contributions, complaints and moderation actions
type ActivityLog interface {
	Record(ctx context.Context, activity models.Activity) error

	// UserStats counts drug_added entries, reports filed by the user
	// and reports filed against drugs the user contributed
	UserStats(ctx context.Context, userID int64) (models.ActivityStats, error)

	// ListActivity returns the user's activity, newest first.
	// An empty kind returns every kind.
	ListActivity(ctx context.Context, userID int64, kind string) ([]models.Activity, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
