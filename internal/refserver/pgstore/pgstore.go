// Package pgstore implements refserver.Store on PostgreSQL via gorm,
// grounded on the teacher's pkg/controlplane/store GORMStore: same
// dialector/AutoMigrate/connection-pool shape, scoped down to this
// system's three tables (spec.md §3's CAS Object and Saved Unit
// lifecycles). Unlike the teacher's store this backend is single-engine
// (Postgres only) — the reference server has no SQLite/embedded mode to
// support, since it exists to back integration tests and local dev, not
// an installed product. Driver errors surfaced through gorm's postgres
// dialector are classified with pgerr.go's wrapPgErr, grounded on the
// teacher's pkg/store/metadata/postgres mapPgError/mapPgErrorCode.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hurrycache/hurrycache/internal/refserver"
	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
)

var _ refserver.Store = (*Store)(nil)

// Config configures a Postgres connection for pgstore.
type Config struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// ApplyDefaults fills in missing configuration, matching the teacher's
// PostgresConfig defaulting convention.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	return dsn
}

// Store implements refserver.Store on Postgres.
type Store struct {
	db *gorm.DB
}

// New opens a Postgres connection per cfg and runs AutoMigrate over this
// package's three tables.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("pgstore: underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) ObjectExists(ctx context.Context, orgID string, key hashkey.Key) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&casVisibility{}).
		Where("org_id = ? AND key = ?", orgID, key.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapPgErr(err, "pgstore.object_exists")
	}
	return count > 0, nil
}

func (s *Store) GetObject(ctx context.Context, orgID string, key hashkey.Key) ([]byte, bool, error) {
	visible, err := s.ObjectExists(ctx, orgID, key)
	if err != nil || !visible {
		return nil, false, err
	}

	var obj casObject
	err = s.db.WithContext(ctx).Where("key = ?", key.String()).First(&obj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapPgErr(err, "pgstore.get_object")
	}
	return obj.Body, true, nil
}

func (s *Store) PutObject(ctx context.Context, orgID string, key hashkey.Key, body []byte) error {
	if hashkey.FromBuffer(body) != key {
		return cacheerr.New(cacheerr.KindValidation, "pgstore.put_object", "hash mismatch").WithKey(key.String())
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		obj := casObject{Key: key.String(), Body: body, CreatedAt: time.Now()}
		if err := tx.Clauses(onConflictDoNothing("key")).Create(&obj).Error; err != nil {
			return wrapPgErr(err, "pgstore.put_object")
		}

		vis := casVisibility{OrgID: orgID, Key: key.String(), WrittenAt: time.Now()}
		if err := tx.Clauses(onConflictDoNothing("org_id", "key")).Create(&vis).Error; err != nil {
			return wrapPgErr(err, "pgstore.put_object_visibility")
		}
		return nil
	})
}

func (s *Store) BulkCheckObjects(ctx context.Context, orgID string, keys []hashkey.Key) (map[hashkey.Key]bool, error) {
	present := make(map[hashkey.Key]bool, len(keys))
	if len(keys) == 0 {
		return present, nil
	}

	hexKeys := make([]string, len(keys))
	for i, k := range keys {
		hexKeys[i] = k.String()
		present[k] = false
	}

	var rows []casVisibility
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND key IN ?", orgID, hexKeys).
		Find(&rows).Error
	if err != nil {
		return nil, wrapPgErr(err, "pgstore.bulk_check")
	}

	for _, row := range rows {
		key, err := hashkey.FromHex(row.Key)
		if err != nil {
			continue
		}
		present[key] = true
	}
	return present, nil
}

func (s *Store) SaveUnits(ctx context.Context, orgID string, plan map[hashkey.Key]savedunit.SavedUnit) error {
	if len(plan) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, su := range plan {
			payload, err := json.Marshal(su)
			if err != nil {
				return fmt.Errorf("pgstore: save_units encode: %w", err)
			}

			row := savedUnitRow{
				OrgID:     orgID,
				UnitKey:   key.String(),
				Kind:      su.Kind.String(),
				Payload:   payload,
				UpdatedAt: time.Now(),
			}
			err = tx.Clauses(onConflictUpdate("org_id", "unit_key")).Create(&row).Error
			if err != nil {
				return wrapPgErr(err, "pgstore.save_units_upsert")
			}
		}
		return nil
	})
}

func (s *Store) RestoreUnits(ctx context.Context, orgID string, keys []hashkey.Key) (map[hashkey.Key]savedunit.SavedUnit, error) {
	hits := make(map[hashkey.Key]savedunit.SavedUnit, len(keys))
	if len(keys) == 0 {
		return hits, nil
	}

	hexKeys := make([]string, len(keys))
	for i, k := range keys {
		hexKeys[i] = k.String()
	}

	var rows []savedUnitRow
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND unit_key IN ?", orgID, hexKeys).
		Find(&rows).Error
	if err != nil {
		return nil, wrapPgErr(err, "pgstore.restore_units")
	}

	for _, row := range rows {
		key, err := hashkey.FromHex(row.UnitKey)
		if err != nil {
			continue
		}
		var su savedunit.SavedUnit
		if err := json.Unmarshal(row.Payload, &su); err != nil {
			return nil, fmt.Errorf("pgstore: restore_units decode %s: %w", row.UnitKey, err)
		}
		hits[key] = su
	}
	return hits, nil
}

func (s *Store) ResetOrg(ctx context.Context, orgID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("org_id = ?", orgID).Delete(&savedUnitRow{}).Error; err != nil {
			return wrapPgErr(err, "pgstore.reset_org_units")
		}
		if err := tx.Where("org_id = ?", orgID).Delete(&casVisibility{}).Error; err != nil {
			return wrapPgErr(err, "pgstore.reset_org_visibility")
		}
		return nil
	})
}

func (s *Store) OrgStats(ctx context.Context, orgID string) (int, int, error) {
	var unitCount, contentCount int64
	if err := s.db.WithContext(ctx).Model(&savedUnitRow{}).Where("org_id = ?", orgID).Count(&unitCount).Error; err != nil {
		return 0, 0, wrapPgErr(err, "pgstore.org_stats_units")
	}
	if err := s.db.WithContext(ctx).Model(&casVisibility{}).Where("org_id = ?", orgID).Count(&contentCount).Error; err != nil {
		return 0, 0, wrapPgErr(err, "pgstore.org_stats_visibility")
	}
	return int(unitCount), int(contentCount), nil
}
