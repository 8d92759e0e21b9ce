package ch

import (
	"context"
	"crypto/tls"
	"fmt"

	"medbot/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
)

// ActivityDB is the ClickHouse-backed activity log
type ActivityDB struct {
	conn clickhouse.Conn
}

// NewActivityDB creates a new ClickHouse database connection
func NewActivityDB(host string, port int, database, user, password string, useTLS bool) (*ActivityDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ActivityDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ActivityDB) Initialize(ctx context.Context) error {
	return nil
}

// Record appends an activity entry. Missing IDs are generated.
func (db *ActivityDB) Record(ctx context.Context, activity models.Activity) error {
	id := activity.ID
	if id == "" {
		id = uuid.NewString()
	}

	err := db.conn.Exec(ctx, `INSERT INTO activity (id, at, kind, actor_id, subject_id, barcode) VALUES (?, ?, ?, ?, ?, ?)`,
		id, activity.At, activity.Kind, activity.ActorID, activity.SubjectID, activity.Barcode)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// UserStats counts the user's contributions and complaints
func (db *ActivityDB) UserStats(ctx context.Context, userID int64) (models.ActivityStats, error) {
	row := db.conn.QueryRow(ctx, `
		SELECT
			countIf(kind = ? AND actor_id = ?),
			countIf(kind = ? AND actor_id = ?),
			countIf(kind = ? AND subject_id = ?)
		FROM activity
		WHERE actor_id = ? OR subject_id = ?`,
		models.ActivityDrugAdded, userID,
		models.ActivityReportFiled, userID,
		models.ActivityReportFiled, userID,
		userID, userID,
	)

	var contributed, filed, received uint64
	if err := row.Scan(&contributed, &filed, &received); err != nil {
		return models.ActivityStats{}, fmt.Errorf("failed to get user stats: %w", err)
	}

	return models.ActivityStats{
		Contributed:     int(contributed),
		ReportsFiled:    int(filed),
		ReportsReceived: int(received),
	}, nil
}

// ListActivity returns the user's activity, newest first
func (db *ActivityDB) ListActivity(ctx context.Context, userID int64, kind string) ([]models.Activity, error) {
	query := `SELECT toString(id), at, kind, actor_id, subject_id, barcode FROM activity WHERE (actor_id = ? OR subject_id = ?)`
	args := []interface{}{userID, userID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY at DESC`

	rows, err := db.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var result []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.At, &a.Kind, &a.ActorID, &a.SubjectID, &a.Barcode); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// Close closes the database connection
func (db *ActivityDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
