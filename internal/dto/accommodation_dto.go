package dto

import "github.com/noah-isme/gema-assessment-api/internal/models"

// AccommodationUpdateRequest updates a student's accessibility profile.
type AccommodationUpdateRequest struct {
	FontSize               *float64 `json:"font_size" validate:"omitempty,gt=0,lte=4"`
	TTSSpeed               *float64 `json:"tts_speed" validate:"omitempty,gt=0,lte=4"`
	ExtendedTimeMultiplier *float64 `json:"extended_time_multiplier" validate:"omitempty,gte=1,lte=4"`
	ContrastMode           *bool    `json:"contrast_mode"`
	ScreenReader           *string  `json:"screen_reader" validate:"omitempty,max=64"`
	Disabilities           []string `json:"disabilities" validate:"omitempty,dive,required,max=64"`
}

// AccommodationProfileResponse exposes the stored profile and the multiplier
// a newly started attempt would receive.
type AccommodationProfileResponse struct {
	StudentID          uint                            `json:"student_id"`
	Preferences        models.AccessibilityPreferences `json:"preferences"`
	Disabilities       []string                        `json:"disabilities"`
	ResolvedMultiplier float64                         `json:"resolved_multiplier"`
}
