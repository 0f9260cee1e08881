package core

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultName is addressed when the user leaves the name blank.
	DefaultName = "你"
	// DefaultQuestion is asked when the user leaves the question blank. The
	// inquiry task always runs, so a question is always sent.
	DefaultQuestion = "请基于本命与天时给出综合性的现实建议与启发。"

	// BirthDateLayout is the accepted birth date format.
	BirthDateLayout = "2006-01-02"
)

// ErrInvalidInputs is returned when a divination attempt cannot be started.
var ErrInvalidInputs = errors.New("invalid inputs")

// Inputs are the user supplied values for one divination attempt.
type Inputs struct {
	BirthDate string `json:"birth_date" yaml:"birth_date"`
	Name      string `json:"name,omitempty" yaml:"name"`
	Question  string `json:"question,omitempty" yaml:"question"`
}

// Validate checks that the birth date is present and well formed.
func (in Inputs) Validate() error {
	bd := strings.TrimSpace(in.BirthDate)
	if bd == "" {
		return fmt.Errorf("%w: birth date is required", ErrInvalidInputs)
	}
	if _, err := time.Parse(BirthDateLayout, bd); err != nil {
		return fmt.Errorf("%w: birth date must use YYYY-MM-DD: %v", ErrInvalidInputs, err)
	}
	return nil
}

// EffectiveName returns the trimmed name or DefaultName.
func (in Inputs) EffectiveName() string {
	if n := strings.TrimSpace(in.Name); n != "" {
		return n
	}
	return DefaultName
}

// EffectiveQuestion returns the trimmed question or DefaultQuestion.
func (in Inputs) EffectiveQuestion() string {
	if q := strings.TrimSpace(in.Question); q != "" {
		return q
	}
	return DefaultQuestion
}

// SessionKey identifies one logical stream: the three sub-task identifiers
// plus the auxiliary user text. Two attempts with equal keys describe the same
// stream.
type SessionKey struct {
	OriginID    string
	CelestialID string
	InquiryID   string
	Aux         string
}

// NewSessionKey builds a key from per-kind results and the raw question.
func NewSessionKey(results map[TaskKind]TaskResult, question string) SessionKey {
	return SessionKey{
		OriginID:    results[TaskOrigin].ID,
		CelestialID: results[TaskCelestial].ID,
		InquiryID:   results[TaskInquiry].ID,
		Aux:         strings.TrimSpace(question),
	}
}

// String renders the key in the dash separated form used for logging.
func (k SessionKey) String() string {
	return strings.Join([]string{k.OriginID, k.CelestialID, k.InquiryID, k.Aux}, "-")
}

// IsZero reports whether no identifiers are set.
func (k SessionKey) IsZero() bool { return k == SessionKey{} }

// StreamRequest carries the parameters of the streaming endpoint.
type StreamRequest struct {
	OriginID    string `json:"origin_id"`
	CelestialID string `json:"celestial_id"`
	InquiryID   string `json:"inquiry_id"`
	Question    string `json:"question"`
	Name        string `json:"name"`
}

// NewStreamRequest derives the stream parameters for key using the effective
// question and name of in.
func NewStreamRequest(key SessionKey, in Inputs) StreamRequest {
	return StreamRequest{
		OriginID:    key.OriginID,
		CelestialID: key.CelestialID,
		InquiryID:   key.InquiryID,
		Question:    in.EffectiveQuestion(),
		Name:        in.EffectiveName(),
	}
}

// Values encodes the request as query parameters.
func (r StreamRequest) Values() url.Values {
	v := url.Values{}
	v.Set("origin_id", r.OriginID)
	v.Set("celestial_id", r.CelestialID)
	v.Set("inquiry_id", r.InquiryID)
	v.Set("question", r.Question)
	v.Set("name", r.Name)
	return v
}
