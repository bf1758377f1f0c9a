package domain

import (
	"time"
)

// Hit is the persisted form of a CheckResult.
type Hit struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ResultID  string    `gorm:"size:36;uniqueIndex"`
	JobID     string    `gorm:"size:36;index"`
	Config    string    `gorm:"size:128;index"`
	Status    string    `gorm:"size:32;index"`
	Data      string    `gorm:"not null"`
	Captured  string    `gorm:"default:''"`
	Proxy     string    `gorm:"default:''"`
	Error     string    `gorm:"default:''"`
	ElapsedMs int64     `gorm:"not null;default:0"`
	CheckedAt time.Time `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func NewHit(result CheckResult) Hit {
	hit := Hit{
		ResultID:  result.ID,
		JobID:     result.JobID,
		Config:    result.Config,
		Status:    result.RawStatus,
		Data:      result.Line.Data,
		Captured:  result.CapturedData(),
		Error:     result.Error,
		ElapsedMs: result.Elapsed.Milliseconds(),
		CheckedAt: result.CheckedAt,
	}
	if hit.Status == "" {
		hit.Status = result.Status.String()
	}
	if result.Proxy != nil {
		hit.Proxy = result.Proxy.String()
	}
	return hit
}
