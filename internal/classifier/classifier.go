// Package classifier turns a telemetry payload into behavioural signals and
// votes on whether the submission came from a human.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Thresholds the signals are measured against.
const (
	MouseMovementThreshold = 150
	ScreenWidthThreshold   = 1536
	ScreenHeightThreshold  = 864
	TimeOnPageThreshold    = 12
	ClicksMin              = 6
	ClicksMax              = 10
	PreferredLanguage      = "en-GB"
)

// Predictions returned by the model.
const (
	Bot   = 0
	Human = 1
)

// Input validation errors. They are reported to the caller as bad requests.
var (
	ErrMouseMovementsNotList = errors.New("expected 'mouseMovements' to be a list")
	ErrMouseMovementsEmpty   = errors.New("the list 'mouseMovements' is empty")
	ErrMouseMovementsInvalid = errors.New("all elements in 'mouseMovements' should be convertible to integers")
)

// MouseMovement is one sampled pointer position.
type MouseMovement struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp float64 `json:"timestamp"`
}

// Input is the subset of the telemetry payload the model looks at.
type Input struct {
	MouseMovements json.RawMessage `json:"mouseMovements"`
	ScreenWidth    float64         `json:"screenWidth"`
	ScreenHeight   float64         `json:"screenHeight"`
	BrowserName    string          `json:"browserName"`
	UserAgent      string          `json:"userAgent"`
	Language       string          `json:"language"`
	TimeOnPage     float64         `json:"timeOnPage"`
	Clicks         float64         `json:"clicks"`
	KeyPresses     float64         `json:"keyPresses"`
	Referrer       string          `json:"referrer"`
}

// Features are the binary signals derived from an Input.
type Features struct {
	AverageMouseMovement float64
	MouseMovementAbove   bool
	ScreenWidthAbove     bool
	ScreenHeightAbove    bool
	LanguageIsEnGB       bool
	TimeOnPageAbove      bool
	ClicksWithinRange    bool
}

// Count returns how many signals are set.
func (f Features) Count() int {
	n := 0
	for _, b := range []bool{
		f.MouseMovementAbove,
		f.ScreenWidthAbove,
		f.ScreenHeightAbove,
		f.LanguageIsEnGB,
		f.TimeOnPageAbove,
		f.ClicksWithinRange,
	} {
		if b {
			n++
		}
	}
	return n
}

// Extract derives features. Only mouseMovements is validated; the other
// fields default to their zero value.
func Extract(in Input) (Features, error) {
	var raw []json.RawMessage
	if len(in.MouseMovements) == 0 || json.Unmarshal(in.MouseMovements, &raw) != nil || raw == nil {
		return Features{}, ErrMouseMovementsNotList
	}

	var sum int64
	for i, m := range raw {
		ts, err := timestamp(m)
		if err != nil {
			return Features{}, fmt.Errorf("%w: element %d: %v", ErrMouseMovementsInvalid, i, err)
		}
		sum += ts
	}
	if len(raw) == 0 {
		return Features{}, ErrMouseMovementsEmpty
	}
	avg := float64(sum) / float64(len(raw))

	return Features{
		AverageMouseMovement: avg,
		MouseMovementAbove:   avg > MouseMovementThreshold,
		ScreenWidthAbove:     in.ScreenWidth >= ScreenWidthThreshold,
		ScreenHeightAbove:    in.ScreenHeight >= ScreenHeightThreshold,
		LanguageIsEnGB:       in.Language == PreferredLanguage,
		TimeOnPageAbove:      in.TimeOnPage > TimeOnPageThreshold,
		ClicksWithinRange:    in.Clicks >= ClicksMin && in.Clicks <= ClicksMax,
	}, nil
}

// timestamp reads the integer timestamp of one movement; a movement without
// one counts as 0.
func timestamp(m json.RawMessage) (int64, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m, &fields); err != nil || fields == nil {
		return 0, errors.New("not an object")
	}
	ts, ok := fields["timestamp"]
	if !ok || string(ts) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(ts, &n); err != nil {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// Model votes on features.
type Model struct {
	// HumanThreshold is the minimum number of signals for a human verdict.
	HumanThreshold int
}

// Predict returns Human or Bot.
func (m Model) Predict(f Features) int {
	if f.Count() >= m.HumanThreshold {
		return Human
	}
	return Bot
}
