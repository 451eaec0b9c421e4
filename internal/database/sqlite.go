package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed-width fractional seconds so lexicographic order on the stored text
// equals chronological order.
const createdAtLayout = "2006-01-02 15:04:05.000000000"

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at the given
// connection string. The handle is limited to a single open connection:
// SQLite allows one writer at a time and the serialization preserves the
// strictly-increasing id invariant under concurrent inserts.
func NewSQLiteStore(connectionString string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		name TEXT,
		email TEXT,
		age_group TEXT,
		gender TEXT,
		emotion TEXT NOT NULL,
		confidence REAL NOT NULL,
		image_path TEXT NOT NULL,
		is_online BOOLEAN,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("%w: cannot create schema: %v", ErrStore, err)
	}
	return nil
}

func (s *SQLiteStore) Insert(d *Detection) (int64, error) {
	createdAt := time.Now().UTC()

	result, err := s.db.Exec(`INSERT INTO detections
		(session_id, name, email, age_group, gender, emotion, confidence, image_path, is_online, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.Name, d.Email, d.AgeGroup, d.Gender,
		d.Emotion, d.Confidence, d.ImagePath, d.IsOnline,
		createdAt.Format(createdAtLayout))
	if err != nil {
		return 0, fmt.Errorf("%w: insert failed: %v", ErrStore, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}

	d.ID = id
	d.CreatedAt = createdAt
	return id, nil
}

func (s *SQLiteStore) ListRecent(limit int) ([]Detection, error) {
	if limit <= 0 {
		return []Detection{}, nil
	}

	rows, err := s.db.Query(`SELECT id, session_id, name, email, age_group, gender,
		emotion, confidence, image_path, is_online, created_at
		FROM detections ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	detections := []Detection{}
	for rows.Next() {
		var d Detection
		var createdAt string
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Name, &d.Email, &d.AgeGroup,
			&d.Gender, &d.Emotion, &d.Confidence, &d.ImagePath, &d.IsOnline, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		d.CreatedAt, err = time.Parse(createdAtLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed created_at %q: %v", ErrStore, createdAt, err)
		}
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return detections, nil
}

func (s *SQLiteStore) Aggregate() ([]EmotionStat, error) {
	rows, err := s.db.Query(`SELECT emotion, COUNT(*), AVG(confidence)
		FROM detections GROUP BY emotion ORDER BY emotion`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	stats := []EmotionStat{}
	for rows.Next() {
		var stat EmotionStat
		if err := rows.Scan(&stat.Emotion, &stat.Count, &stat.AvgConfidence); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return stats, nil
}

func (s *SQLiteStore) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
