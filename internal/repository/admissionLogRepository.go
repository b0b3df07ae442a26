package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/governance-api/internal/models"
	"github.com/aman-churiwal/governance-api/internal/storage"
)

type AdmissionLogRepository struct {
	db *storage.Postgres
}

func NewAdmissionLogRepository(db *storage.Postgres) *AdmissionLogRepository {
	return &AdmissionLogRepository{db: db}
}

// Inserts multiple admission logs (for batch insertion)
func (r *AdmissionLogRepository) CreateBatch(ctx context.Context, logs []models.AdmissionLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&logs).Error
}

// Counts rejections per layer since the given time
func (r *AdmissionLogRepository) CountByLayerSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.AdmissionLog{}).
		Select("layer, COUNT(*) as count").
		Where("timestamp >= ?", since).
		Group("layer").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var layer string
		var count int64
		if err := rows.Scan(&layer, &count); err != nil {
			return nil, err
		}
		counts[layer] = count
	}

	return counts, rows.Err()
}
