package diffcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// diffRecord is one cached path set.
type diffRecord struct {
	ID       uint   `gorm:"primaryKey"`
	Project  string `gorm:"uniqueIndex:idx_diff_key;type:varchar(255);not null"`
	CommitID string `gorm:"uniqueIndex:idx_diff_key;type:char(64);not null"`
	// Against is "" for the empty tree.
	Against string `gorm:"uniqueIndex:idx_diff_key;type:varchar(64);not null"`

	// Paths is the sorted JSON array of touched paths.
	Paths datatypes.JSON

	CreatedAt time.Time
}

func (diffRecord) TableName() string { return "commit_diff_cache" }

// SQL keeps the cache in a relational table.
type SQL struct {
	db *gorm.DB
}

// OpenSQL opens driver ("sqlite" or "postgres") at dsn and migrates the
// cache table.
func OpenSQL(driver, dsn string) (*SQL, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return NewSQL(db)
}

// NewSQL wraps an open connection and migrates the cache table.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&diffRecord{}); err != nil {
		return nil, fmt.Errorf("migrate diff cache: %w", err)
	}
	return &SQL{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("close diff cache: %w", err)
	}
	return sqlDB.Close()
}

func (s *SQL) Load(ctx context.Context, key Key) ([]string, bool, error) {
	var rec diffRecord
	err := s.db.WithContext(ctx).
		Where("project = ? AND commit_id = ? AND against = ?", key.Project, string(key.Commit), string(key.Against)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load diff cache: %w", err)
	}
	paths := []string{}
	if len(rec.Paths) > 0 {
		if err := json.Unmarshal(rec.Paths, &paths); err != nil {
			return nil, false, fmt.Errorf("decode cached paths: %w", err)
		}
	}
	return paths, true, nil
}

func (s *SQL) Save(ctx context.Context, key Key, paths []string) error {
	data, err := json.Marshal(sortedCopy(paths))
	if err != nil {
		return fmt.Errorf("encode cached paths: %w", err)
	}
	rec := diffRecord{
		Project:  key.Project,
		CommitID: string(key.Commit),
		Against:  string(key.Against),
		Paths:    datatypes.JSON(data),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project"}, {Name: "commit_id"}, {Name: "against"}},
			DoUpdates: clause.AssignmentColumns([]string{"paths"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save diff cache: %w", err)
	}
	return nil
}

func (s *SQL) Purge(ctx context.Context, project string) error {
	if err := s.db.WithContext(ctx).Where("project = ?", project).Delete(&diffRecord{}).Error; err != nil {
		return fmt.Errorf("purge diff cache: %w", err)
	}
	return nil
}
