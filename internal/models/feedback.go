package models

import "time"

// FeedbackCategory is the closed set of cues the operator can receive
type FeedbackCategory string

const (
	FeedbackSuccess FeedbackCategory = "success"
	FeedbackWarning FeedbackCategory = "warning"
	FeedbackError   FeedbackCategory = "error"
	FeedbackInfo    FeedbackCategory = "info"
	FeedbackOffline FeedbackCategory = "offline"
)

// Cue is the audible/haptic side of a feedback category
type Cue struct {
	Sound     string `json:"sound"`
	Vibration []int  `json:"vibration"` // Pattern in milliseconds
}

// Cue returns the sound and vibration pattern for the category
func (c FeedbackCategory) Cue() Cue {
	switch c {
	case FeedbackSuccess:
		return Cue{Sound: "success", Vibration: []int{100}}
	case FeedbackWarning:
		return Cue{Sound: "warning", Vibration: []int{200, 100, 200}}
	case FeedbackError:
		return Cue{Sound: "error", Vibration: []int{400, 100, 400}}
	case FeedbackOffline:
		return Cue{Sound: "offline", Vibration: []int{300}}
	default:
		return Cue{Sound: "info", Vibration: nil}
	}
}

// FeedbackOptions carries the details a presenter may need
type FeedbackOptions struct {
	BinID          string     `json:"bin_id,omitempty"`
	PriorTimestamp *time.Time `json:"prior_timestamp,omitempty"`
	Actions        []string   `json:"actions,omitempty"` // Operator decisions offered, e.g. override/cancel
	Cue            Cue        `json:"cue"`
}

type FeedbackEvent struct {
	Category FeedbackCategory `json:"category"`
	Message  string           `json:"message"`
	Options  FeedbackOptions  `json:"options"`
}
