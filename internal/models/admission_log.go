package models

import (
	"time"
)

// Represents a rejected admission decision
type AdmissionLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
	RequestID  string    `json:"request_id"`
	UserID     string    `gorm:"index" json:"user_id,omitempty"`
	Identity   string    `json:"identity"`
	Layer      string    `gorm:"index" json:"layer"` // "ratelimit" or "quota"
	Code       string    `gorm:"index" json:"code"`
	Method     string    `json:"method"`
	Path       string    `gorm:"index" json:"path"`
	StatusCode int       `json:"status_code"`
	IPAddress  string    `json:"ip_address"`
}

func (AdmissionLog) TableName() string {
	return "admission_logs"
}
