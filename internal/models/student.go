package models

import (
	"time"

	"gorm.io/datatypes"
)

// AccessibilityPreferences mirrors the profile preferences captured at onboarding.
type AccessibilityPreferences struct {
	FontSize               float64 `json:"font_size"`
	TTSSpeed               float64 `json:"tts_speed"`
	ExtendedTimeMultiplier float64 `json:"extended_time_multiplier"`
	ContrastMode           bool    `json:"contrast_mode"`
	ScreenReader           string  `json:"screen_reader,omitempty"`
}

// DefaultAccessibilityPreferences returns the profile defaults for new users.
func DefaultAccessibilityPreferences() AccessibilityPreferences {
	return AccessibilityPreferences{FontSize: 1, TTSSpeed: 1, ExtendedTimeMultiplier: 1}
}

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Student represents a platform user together with their accommodation profile.
type Student struct {
	ID           uint                                         `gorm:"primaryKey" json:"id"`
	Name         string                                       `gorm:"size:255;not null" json:"name"`
	Email        string                                       `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role         string                                       `gorm:"size:32;not null;default:student" json:"role"`
	Disabilities datatypes.JSONSlice[string]                  `gorm:"type:json" json:"disabilities"`
	Preferences  datatypes.JSONType[AccessibilityPreferences] `gorm:"type:json" json:"preferences"`
	CreatedAt    time.Time                                    `json:"created_at"`
	UpdatedAt    time.Time                                    `json:"updated_at"`
}
