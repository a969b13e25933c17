// File: internal/profile/cache.go
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/config"
)

// cachedProfile is the GORM model for the offline cache. The profile document
// and any queued patch are stored as JSON so the cache schema never lags the
// document schema.
type cachedProfile struct {
	UID          string `gorm:"primaryKey;column:uid;type:varchar(128)"`
	Document     string `gorm:"column:document;type:text;not null"`
	PendingPatch string `gorm:"column:pending_patch;type:text"`
	Dirty        bool   `gorm:"column:dirty;not null;default:false"`
	UpdatedAt    time.Time
}

func (cachedProfile) TableName() string {
	return "cached_profiles"
}

// PendingEntry is a queued offline write awaiting sync.
type PendingEntry struct {
	UID   string
	Patch *Patch
}

// Cache is a durable local mirror of profile documents, used for reads when
// the remote store is unreachable and as a queue for offline writes.
type Cache struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCache opens (or creates) the SQLite cache at cfg.ProfileCachePath.
// Returns (nil, nil) when no cache path is configured: the offline cache is
// an optional collaborator and a nil *Cache disables fallback behavior.
func NewCache(cfg *config.Config, logger *zap.Logger) (*Cache, error) {
	if cfg.ProfileCachePath == "" {
		logger.Info("PROFILE_CACHE_PATH not set, offline profile cache disabled.")
		return nil, nil
	}
	return OpenCache(cfg.ProfileCachePath, logger)
}

// OpenCache opens a cache at an explicit path ("file::memory:?cache=shared"
// works for tests).
func OpenCache(path string, logger *zap.Logger) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open profile cache at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&cachedProfile{}); err != nil {
		return nil, fmt.Errorf("failed to migrate profile cache schema: %w", err)
	}
	logger.Info("Offline profile cache ready", zap.String("path", path))
	return &Cache{db: db, logger: logger.Named("ProfileCache")}, nil
}

// Put mirrors a freshly fetched document into the cache. A fresh remote copy
// supersedes any queued patch for the same UID.
func (c *Cache) Put(p *UserProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile for cache: %w", err)
	}
	row := cachedProfile{
		UID:      p.UID,
		Document: string(raw),
		Dirty:    false,
	}
	return c.db.Save(&row).Error
}

// Get returns the cached copy for uid, or common.ErrNotFound.
func (c *Cache) Get(uid string) (*UserProfile, error) {
	var row cachedProfile
	if err := c.db.Where("uid = ?", uid).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("No cached profile for this user.")
		}
		return nil, err
	}
	var p UserProfile
	if err := json.Unmarshal([]byte(row.Document), &p); err != nil {
		return nil, fmt.Errorf("cached profile for %s is malformed: %w", uid, err)
	}
	return &p, nil
}

// Merge applies a patch that the remote store already accepted, keeping the
// cached copy coherent without marking it dirty.
func (c *Cache) Merge(uid string, patch *Patch) error {
	return c.apply(uid, patch, false)
}

// QueuePatch records a write made while the remote store was unreachable.
// The patch is folded into any previously queued patch (last writer wins per
// field) and the row is marked dirty for the sync job.
func (c *Cache) QueuePatch(uid string, patch *Patch) error {
	return c.apply(uid, patch, true)
}

func (c *Cache) apply(uid string, patch *Patch, queue bool) error {
	if patch.IsZero() {
		return nil
	}
	return c.db.Transaction(func(tx *gorm.DB) error {
		var row cachedProfile
		if err := tx.Where("uid = ?", uid).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound.WithDetails("No cached profile for this user.")
			}
			return err
		}

		var p UserProfile
		if err := json.Unmarshal([]byte(row.Document), &p); err != nil {
			return fmt.Errorf("cached profile for %s is malformed: %w", uid, err)
		}
		patch.ApplyTo(&p)
		raw, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		row.Document = string(raw)

		if queue {
			pending := &Patch{}
			if row.PendingPatch != "" {
				if err := json.Unmarshal([]byte(row.PendingPatch), pending); err != nil {
					c.logger.Warn("Discarding malformed pending patch", zap.String("uid", uid), zap.Error(err))
					pending = &Patch{}
				}
			}
			pending.merge(patch)
			rawPatch, err := json.Marshal(pending)
			if err != nil {
				return err
			}
			row.PendingPatch = string(rawPatch)
			row.Dirty = true
		}

		return tx.Save(&row).Error
	})
}

// DirtyEntries returns queued offline writes in UID order.
func (c *Cache) DirtyEntries() ([]PendingEntry, error) {
	var rows []cachedProfile
	if err := c.db.Where("dirty = ?", true).Order("uid").Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]PendingEntry, 0, len(rows))
	for _, row := range rows {
		patch := &Patch{}
		if row.PendingPatch != "" {
			if err := json.Unmarshal([]byte(row.PendingPatch), patch); err != nil {
				c.logger.Warn("Skipping malformed pending patch", zap.String("uid", row.UID), zap.Error(err))
				continue
			}
		}
		entries = append(entries, PendingEntry{UID: row.UID, Patch: patch})
	}
	return entries, nil
}

// MarkClean clears the dirty flag and queued patch for uid.
func (c *Cache) MarkClean(uid string) error {
	return c.db.Model(&cachedProfile{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{"dirty": false, "pending_patch": ""}).Error
}
