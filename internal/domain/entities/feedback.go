package entities

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

// Sentiment classifies a feedback record.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	// SentimentNeutral is reserved; no flow produces it.
	SentimentNeutral Sentiment = "neutral"
)

const (
	MinRating = 1
	MaxRating = 5

	// PositiveThreshold is the lowest rating routed to the review redirect.
	PositiveThreshold = 4
)

// ClassifyRating maps a 1-5 rating to the branch the visitor is sent down.
func ClassifyRating(rating int) (Sentiment, error) {
	if rating < MinRating || rating > MaxRating {
		return "", apperrors.NewValidationError(fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}
	if rating >= PositiveThreshold {
		return SentimentPositive, nil
	}
	return SentimentNegative, nil
}

// FeedbackRecord is one persisted feedback submission. Records are append-only.
type FeedbackRecord struct {
	Rating                  int       `json:"rating" validate:"min=1,max=5"`
	Sentiment               Sentiment `json:"sentiment" validate:"oneof=positive negative neutral"`
	GoogleRedirectTriggered bool      `json:"googleRedirectTriggered"`
	CustomerName            string    `json:"customerName,omitempty" validate:"max=200"`
	CustomerPhone           string    `json:"customerPhone,omitempty" validate:"max=50"`
	CustomerMessage         string    `json:"customerMessage,omitempty" validate:"max=4000"`
	Timestamp               time.Time `json:"timestamp" validate:"required"`
}

// StoredRecord is a FeedbackRecord together with its store-assigned id.
type StoredRecord struct {
	ID string `json:"id"`
	FeedbackRecord
}

// Complaint holds the contact details collected by the negative feedback form.
type Complaint struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,max=50"`
	Message string `json:"message" validate:"required,max=4000"`
}

// Normalize trims surrounding whitespace from every field.
func (c Complaint) Normalize() Complaint {
	return Complaint{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Message: strings.TrimSpace(c.Message),
	}
}

// NewNegativeRecord builds the record produced by the complaint form.
func NewNegativeRecord(rating int, complaint Complaint, at time.Time) FeedbackRecord {
	return FeedbackRecord{
		Rating:                  rating,
		Sentiment:               SentimentNegative,
		GoogleRedirectTriggered: false,
		CustomerName:            complaint.Name,
		CustomerPhone:           complaint.Phone,
		CustomerMessage:         complaint.Message,
		Timestamp:               at.UTC(),
	}
}

// NewPositiveRecord builds the record produced by the review redirect.
func NewPositiveRecord(rating int, at time.Time) FeedbackRecord {
	return FeedbackRecord{
		Rating:                  rating,
		Sentiment:               SentimentPositive,
		GoogleRedirectTriggered: true,
		Timestamp:               at.UTC(),
	}
}

// Matches reports whether the record matches an admin search term: name and
// message case-insensitively, phone as a plain substring. An empty term
// matches everything.
func (r StoredRecord) Matches(term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return true
	}
	lower := strings.ToLower(term)
	return strings.Contains(strings.ToLower(r.CustomerName), lower) ||
		strings.Contains(r.CustomerPhone, term) ||
		strings.Contains(strings.ToLower(r.CustomerMessage), lower)
}
