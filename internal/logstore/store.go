// Package logstore persists per-station wire events in a single SQLite file
// and turns them into downloadable log artifacts.
package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// timestampLayout is RFC3339 with millisecond precision and the local zone
// offset, the format used both in rows and in extracted files.
const timestampLayout = "2006-01-02T15:04:05.000-07:00"

// retention is how far back events survive a purge.
const retentionMonths = 1

// serverLogFile is reserved; purge truncates it instead of deleting it.
const serverLogFile = "server.log"

// Station is one known charge station.
type Station struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (Station) TableName() string { return "stations" }

// Event is one logged wire or lifecycle event.
type Event struct {
	ID        uint   `gorm:"primaryKey"`
	Timestamp string `gorm:"not null;index"`
	StationID uint   `gorm:"index"`
	Level     string `gorm:"not null;default:info"`
	Message   string
}

func (Event) TableName() string { return "events" }

// Store is the event log. Append never fails loudly: a charge station
// conversation must not die because bookkeeping did.
type Store struct {
	db  *gorm.DB
	dir string
	log *zap.Logger
}

// Open opens (creating if absent) the SQLite database and the artifacts
// directory, and migrates the schema.
func Open(dbPath, artifactsDir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening log database: %w", err)
	}
	if err := db.AutoMigrate(&Station{}, &Event{}); err != nil {
		return nil, fmt.Errorf("migrating log schema: %w", err)
	}
	return &Store{db: db, dir: filepath.Clean(artifactsDir), log: log}, nil
}

// Dir returns the artifacts directory.
func (s *Store) Dir() string { return s.dir }

// Healthy pings the underlying database.
func (s *Store) Healthy() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// EnsureStation registers a station name, idempotently.
func (s *Store) EnsureStation(name string) error {
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Station{Name: name})
	if res.Error != nil {
		return fmt.Errorf("ensuring station %s: %w", name, res.Error)
	}
	return nil
}

// Append records an event for a station and mirrors it to the process log.
// Persistence failures are diagnosed, never propagated.
func (s *Store) Append(station, level, message string) {
	switch level {
	case "error":
		s.log.Error(message, zap.String("serial_id", station))
	case "warn":
		s.log.Warn(message, zap.String("serial_id", station))
	default:
		s.log.Info(message, zap.String("serial_id", station))
	}

	if err := s.EnsureStation(station); err != nil {
		s.log.Error("log store append failed", zap.Error(err))
		return
	}
	var st Station
	if err := s.db.Where("name = ?", station).First(&st).Error; err != nil {
		s.log.Error("log store append failed", zap.Error(err))
		return
	}
	ev := Event{
		Timestamp: time.Now().Format(timestampLayout),
		StationID: st.ID,
		Level:     level,
		Message:   message,
	}
	if err := s.db.Create(&ev).Error; err != nil {
		s.log.Error("log store append failed", zap.Error(err))
	}
}

// Extract writes the station's events between the two timestamps into a file
// under the artifacts directory, one `[<timestamp>] <message>` line each, and
// returns the relative filename. Undecodable rows are skipped with a
// diagnostic.
func (s *Store) Extract(station, begin, end string) (string, error) {
	rows, err := s.db.Model(&Event{}).
		Select("events.timestamp, events.message").
		Joins("JOIN stations ON stations.id = events.station_id").
		Where("stations.name = ? AND events.timestamp BETWEEN ? AND ?", station, begin, end).
		Order("events.timestamp").
		Rows()
	if err != nil {
		return "", fmt.Errorf("querying events for %s: %w", station, err)
	}
	defer rows.Close()

	filename := sanitizeFilename(station + "_" + begin + ".log")
	f, err := os.Create(filepath.Join(s.dir, filename))
	if err != nil {
		return "", fmt.Errorf("creating log artifact: %w", err)
	}
	defer f.Close()

	for rows.Next() {
		var ts, msg string
		if err := rows.Scan(&ts, &msg); err != nil {
			s.log.Warn("skipping undecodable event row", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(f, "[%s] %s\n", ts, msg); err != nil {
			return "", fmt.Errorf("writing log artifact: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading events for %s: %w", station, err)
	}
	return filename, nil
}

// Purge drops events older than the retention window and prunes stale
// artifacts. server.log is truncated, never removed.
func (s *Store) Purge() error {
	cutoffTime := time.Now().AddDate(0, -retentionMonths, 0)
	cutoff := cutoffTime.Format(timestampLayout)
	if err := s.db.Where("timestamp < ?", cutoff).Delete(&Event{}).Error; err != nil {
		return fmt.Errorf("purging events: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading logs directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if entry.Name() == serverLogFile {
			if err := os.Truncate(path, 0); err != nil {
				s.log.Warn("truncating server.log failed", zap.Error(err))
			}
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoffTime) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.log.Warn("removing stale log artifact failed",
				zap.String("file", entry.Name()), zap.Error(err))
		}
	}
	return nil
}

// sanitizeFilename keeps log artifact names URL and filesystem safe.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}
