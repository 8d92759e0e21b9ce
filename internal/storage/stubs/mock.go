package stubs

import (
	"context"
	"sort"
	"strings"
	"sync"

	"medbot/internal/models"
	"medbot/internal/storage"
)

// MockDB is an in-memory implementation of storage.Repository and
// storage.ActivityLog for tests and local development
type MockDB struct {
	mu       sync.RWMutex
	drugs    map[string]models.DrugRecord
	admins   map[int64]models.AdminRecord
	bans     map[int64]models.BanRecord
	activity []models.Activity

	// failure, when set, is returned by every operation
	failure error
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		drugs:  make(map[string]models.DrugRecord),
		admins: make(map[int64]models.AdminRecord),
		bans:   make(map[int64]models.BanRecord),
	}
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// SetFailure makes every following operation return err; nil restores normal behaviour
func (m *MockDB) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// DrugExists reports whether a drug with the code is stored
func (m *MockDB) DrugExists(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return false, m.failure
	}

	_, ok := m.drugs[code]
	return ok, nil
}

// GetDrug returns the drug with the code
func (m *MockDB) GetDrug(ctx context.Context, code string) (*models.DrugRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	drug, ok := m.drugs[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &drug, nil
}

// InsertDrug stores a new drug
func (m *MockDB) InsertDrug(ctx context.Context, drug models.DrugRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	if _, ok := m.drugs[drug.Code]; ok {
		return storage.ErrDuplicate
	}
	m.drugs[drug.Code] = drug
	return nil
}

// AppendReport adds a complaint entry to the drug's report
func (m *MockDB) AppendReport(ctx context.Context, code, entry string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	drug, ok := m.drugs[code]
	if !ok {
		return storage.ErrNotFound
	}
	drug.Report = models.AppendReportEntry(drug.Report, entry)
	m.drugs[code] = drug
	return nil
}

// SearchDrugs matches the query against name, active ingredient and description
func (m *MockDB) SearchDrugs(ctx context.Context, query string, limit int) ([]models.DrugRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var drugs []models.DrugRecord
	for _, drug := range m.drugs {
		haystack := strings.ToLower(drug.Name + " " + drug.ActiveIngredient + " " + drug.Description)
		if q != "" && strings.Contains(haystack, q) {
			drugs = append(drugs, drug)
		}
	}
	return sortAndLimit(drugs, limit), nil
}

// ListReportedDrugs returns drugs with at least one complaint
func (m *MockDB) ListReportedDrugs(ctx context.Context, limit int) ([]models.DrugRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	var drugs []models.DrugRecord
	for _, drug := range m.drugs {
		if drug.Report != "" {
			drugs = append(drugs, drug)
		}
	}
	return sortAndLimit(drugs, limit), nil
}

// ListDrugsByContributor returns drugs added by the user
func (m *MockDB) ListDrugsByContributor(ctx context.Context, userID int64) ([]models.DrugRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	var drugs []models.DrugRecord
	for _, drug := range m.drugs {
		if drug.ContributorID == userID {
			drugs = append(drugs, drug)
		}
	}
	return sortAndLimit(drugs, 0), nil
}

// CountDrugsByContributor counts drugs added by the user
func (m *MockDB) CountDrugsByContributor(ctx context.Context, userID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return 0, m.failure
	}

	count := 0
	for _, drug := range m.drugs {
		if drug.ContributorID == userID {
			count++
		}
	}
	return count, nil
}

// GetAdmin returns the admin record of the user
func (m *MockDB) GetAdmin(ctx context.Context, userID int64) (*models.AdminRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	admin, ok := m.admins[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &admin, nil
}

// InsertAdmin registers a new admin
func (m *MockDB) InsertAdmin(ctx context.Context, admin models.AdminRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	if _, ok := m.admins[admin.UserID]; ok {
		return storage.ErrDuplicate
	}
	m.admins[admin.UserID] = admin
	return nil
}

// GetBan returns the ban record of the user
func (m *MockDB) GetBan(ctx context.Context, userID int64) (*models.BanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	ban, ok := m.bans[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &ban, nil
}

// SaveBan creates or replaces a ban
func (m *MockDB) SaveBan(ctx context.Context, ban models.BanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	m.bans[ban.UserID] = ban
	return nil
}

// Record appends an activity entry
func (m *MockDB) Record(ctx context.Context, activity models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}

	m.activity = append(m.activity, activity)
	return nil
}

// UserStats counts the user's contributions and complaints
func (m *MockDB) UserStats(ctx context.Context, userID int64) (models.ActivityStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return models.ActivityStats{}, m.failure
	}

	var stats models.ActivityStats
	for _, a := range m.activity {
		switch a.Kind {
		case models.ActivityDrugAdded:
			if a.ActorID == userID {
				stats.Contributed++
			}
		case models.ActivityReportFiled:
			if a.ActorID == userID {
				stats.ReportsFiled++
			}
			if a.SubjectID == userID {
				stats.ReportsReceived++
			}
		}
	}
	return stats, nil
}

// ListActivity returns the user's activity, newest first
func (m *MockDB) ListActivity(ctx context.Context, userID int64, kind string) ([]models.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return nil, m.failure
	}

	var result []models.Activity
	for _, a := range m.activity {
		if a.ActorID != userID && a.SubjectID != userID {
			continue
		}
		if kind != "" && a.Kind != kind {
			continue
		}
		result = append(result, a)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].At.After(result[j].At)
	})
	return result, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

// sortAndLimit orders drugs by name; a non-positive limit keeps all
func sortAndLimit(drugs []models.DrugRecord, limit int) []models.DrugRecord {
	sort.Slice(drugs, func(i, j int) bool {
		if drugs[i].Name != drugs[j].Name {
			return drugs[i].Name < drugs[j].Name
		}
		return drugs[i].Code < drugs[j].Code
	})
	if limit > 0 && limit < len(drugs) {
		drugs = drugs[:limit]
	}
	return drugs
}
