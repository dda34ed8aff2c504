package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog captures auditable events on submissions, whether triggered by
// teachers or by the deadline sweep.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   *uint             `json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

const (
	ActivityActionAutoSubmitted  = "submission.auto_submitted"
	ActivityActionManuallyGraded = "submission.manually_graded"

	// ActivityRoleSystem marks entries written by background workers.
	ActivityRoleSystem = "system"
)
