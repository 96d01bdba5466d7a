package manufacturer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MappingLog records one assembly for audit and coverage reporting.
type MappingLog struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	EpisodeID        string            `gorm:"column:episode_id;index" json:"episode_id"`
	Manufacturer     string            `gorm:"column:manufacturer;index" json:"manufacturer"`
	TemplateID       string            `gorm:"column:template_id" json:"template_id"`
	Valid            bool              `gorm:"column:valid" json:"valid"`
	Completeness     float64           `gorm:"column:completeness_percentage" json:"completeness"`
	RequiredComplete float64           `gorm:"column:required_completeness_percentage" json:"required_completeness"`
	FieldsMapped     int               `gorm:"column:fields_mapped" json:"fields_mapped"`
	FallbackMatches  int               `gorm:"column:fallback_matches" json:"fallback_matches"`
	DurationMillis   int64             `gorm:"column:duration_ms" json:"duration_ms"`
	SubmissionID     *int64            `gorm:"column:submission_id" json:"submission_id,omitempty"`
	Details          datatypes.JSONMap `gorm:"column:details;type:jsonb" json:"details"`
	CreatedAt        time.Time         `gorm:"column:created_at;index" json:"created_at"`
}

func (MappingLog) TableName() string {
	return "field_mapping_logs"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&MappingLog{})
}

func (r *Repository) SaveLog(ctx context.Context, entry *MappingLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) RecentLogs(ctx context.Context, episodeID string, limit int) ([]MappingLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var logs []MappingLog
	err := r.db.WithContext(ctx).
		Where("episode_id = ?", episodeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
