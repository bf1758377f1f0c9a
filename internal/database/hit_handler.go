package database

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Binz120/OpenBullet2/internal/domain"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

const (
	maxParamsPerBatch = 65534 // PostgreSQL's parameter limit - 1
	minBatchSize      = 100
)

var hitFieldCount atomic.Int32

// CalculateHitBatchSize picks the largest batch that stays under the
// parameter limit, never more than hitCount.
func CalculateHitBatchSize(hitCount int) int {
	if hitCount <= 0 {
		return 0
	}

	batchSize := minBatchSize
	if numFields := hitColumnCount(); numFields > 0 {
		batchSize = max(maxParamsPerBatch/numFields, minBatchSize)
	}
	return min(batchSize, hitCount)
}

func hitColumnCount() int {
	if count := hitFieldCount.Load(); count > 0 {
		return int(count)
	}
	if DB == nil {
		return 0
	}

	stmt := &gorm.Statement{DB: DB}
	if err := stmt.Parse(&domain.Hit{}); err != nil {
		log.Error("Failed to parse hit schema", "error", err)
		return 0
	}
	count := len(stmt.Schema.DBNames)
	hitFieldCount.Store(int32(count))
	return count
}

func InsertHits(ctx context.Context, hits []domain.Hit, batchSize int) error {
	if len(hits) == 0 {
		return nil
	}
	if DB == nil {
		return fmt.Errorf("hits: database connection was not initialised")
	}
	if batchSize <= 0 {
		batchSize = CalculateHitBatchSize(len(hits))
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(hits, batchSize).Error
	})
}

// CountHitsByStatus counts the stored hits of a job per status.
func CountHitsByStatus(ctx context.Context, jobID string) (map[string]int64, error) {
	if DB == nil {
		return nil, fmt.Errorf("hits: database connection was not initialised")
	}

	var rows []struct {
		Status string
		Count  int64
	}
	err := DB.WithContext(ctx).
		Model(&domain.Hit{}).
		Select("status, COUNT(*) AS count").
		Where("job_id = ?", jobID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
