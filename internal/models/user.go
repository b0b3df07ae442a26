package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the subscription/consumption record the quota gate reads.
// Counters are maintained by the business services, never by the gate.
type User struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Email              string    `gorm:"uniqueIndex;not null" json:"email"`
	Name               string    `json:"name"`
	Role               string    `gorm:"default:'member'" json:"role"`
	Tier               string    `gorm:"default:'free';not null" json:"tier"`
	ProjectsCount      int       `gorm:"not null;default:0" json:"projects_count"`
	TeamMembersCount   int       `gorm:"not null;default:0" json:"team_members_count"`
	QuestionsThisMonth int       `gorm:"not null;default:0" json:"questions_this_month"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	return nil
}

func (User) TableName() string {
	return "users"
}
