package models

import (
	"fmt"
	"time"
)

// DrugRecord represents a medicine keyed by its barcode
type DrugRecord struct {
	Code             string    `bson:"code" json:"code"`
	Name             string    `bson:"name" json:"name"`
	ActiveIngredient string    `bson:"active_ingredient" json:"active_ingredient"`
	Description      string    `bson:"description" json:"description"`
	Photo            []byte    `bson:"photo,omitempty" json:"photo,omitempty"`
	ContributorID    int64     `bson:"contributor_id" json:"contributor_id"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
	Report           string    `bson:"report,omitempty" json:"report,omitempty"`
}

// HasPhoto reports whether a photo of the package is attached
func (d DrugRecord) HasPhoto() bool {
	return len(d.Photo) > 0
}

// AdminRecord represents a registered contributor
type AdminRecord struct {
	UserID       int64     `bson:"user_id" json:"user_id" validate:"required"`
	ContactInfo  string    `bson:"contact_info" json:"contact_info" validate:"required,max=256"`
	FacePhoto    []byte    `bson:"face_photo,omitempty" json:"-"`
	RegisteredAt time.Time `bson:"registered_at" json:"registered_at"`
}

// BanRecord represents a banned user
type BanRecord struct {
	UserID   int64     `bson:"user_id" json:"user_id"`
	Reason   string    `bson:"reason" json:"reason"`
	BannedAt time.Time `bson:"banned_at" json:"banned_at"`
}

// Activity kinds recorded in the activity log
const (
	ActivityDrugAdded       = "drug_added"
	ActivityReportFiled     = "report_filed"
	ActivityAdminRegistered = "admin_registered"
	ActivityUserBanned      = "user_banned"
)

// Activity is a single entry of the activity log.
// SubjectID is the user the action concerns: the contributor of a reported
// drug, the banned user, or the actor itself.
type Activity struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	ActorID   int64     `json:"actor_id"`
	SubjectID int64     `json:"subject_id"`
	Barcode   string    `json:"barcode,omitempty"`
}

// ActivityStats aggregates activity log counters for one user
type ActivityStats struct {
	Contributed     int
	ReportsFiled    int
	ReportsReceived int
}

// ReportSeparator joins consecutive complaint entries
const ReportSeparator = ",\n"

// FormatReportEntry tags a complaint with its reporter id
func FormatReportEntry(reporterID int64, text string) string {
	return fmt.Sprintf("[%d]: %s", reporterID, text)
}

// AppendReportEntry returns the report field with entry appended.
// Existing entries are never rewritten.
func AppendReportEntry(report, entry string) string {
	if report == "" {
		return entry
	}
	return report + ReportSeparator + entry
}
