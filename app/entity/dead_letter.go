package entity

import "time"

// DeadLetterJob archives a job that exhausted its attempts.
type DeadLetterJob struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	JobID     string    `gorm:"size:191;uniqueIndex"`
	Queue     string    `gorm:"size:100;index"`
	Payload   string    `gorm:"type:text"`
	Attempts  int       `gorm:"not null"`
	LastError string    `gorm:"type:text"`
	FailedAt  time.Time `gorm:"index"`
	Requeued  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (DeadLetterJob) TableName() string {
	return "dead_letter_jobs"
}
