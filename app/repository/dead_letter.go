package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
)

// DeadLetterRepository archives parked queue jobs through gorm and is the
// broker's queue.DeadLetterSink.
type DeadLetterRepository struct {
	db *gorm.DB
}

// OpenDeadLetterRepository reuses an existing *sql.DB connection pool.
func OpenDeadLetterRepository(conn *sql.DB) (*DeadLetterRepository, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewDeadLetterRepository(db), nil
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Migrate() error {
	return r.db.AutoMigrate(&entity.DeadLetterJob{})
}

func (r *DeadLetterRepository) Archive(ctx context.Context, job *queue.Job) error {
	failedAt := time.Now()
	if job.FinishedAt != nil {
		failedAt = *job.FinishedAt
	}

	row := entity.DeadLetterJob{
		JobID:     job.ID,
		Queue:     job.Queue,
		Payload:   string(job.Payload),
		Attempts:  job.Attempt,
		LastError: job.LastError,
		FailedAt:  failedAt,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"attempts", "last_error", "failed_at", "requeued"}),
	}).Create(&row).Error
}

func (r *DeadLetterRepository) List(ctx context.Context, queueName string, limit int) ([]entity.DeadLetterJob, error) {
	if limit <= 0 {
		limit = 50
	}

	tx := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit)
	if queueName != "" {
		tx = tx.Where("queue = ?", queueName)
	}

	var rows []entity.DeadLetterJob
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DeadLetterRepository) MarkRequeued(ctx context.Context, jobID string) error {
	result := r.db.WithContext(ctx).Model(&entity.DeadLetterJob{}).
		Where("job_id = ?", jobID).
		Update("requeued", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
