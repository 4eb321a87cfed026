package domain

import (
	"time"

	"github.com/google/uuid"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Score maps a sentiment onto the {-1, 0, 1} scale used for trend analysis.
func (s Sentiment) Score() int {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	}
	return 0
}

func ValidSentiment(s string) bool {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is one routed unit of work. Ingestion populates it before it
// reaches the engine; the engine only reads it during a routing pass.
type Conversation struct {
	ID           uuid.UUID          `json:"id"`
	Category     string             `json:"category"`
	Tags         []string           `json:"tags,omitempty"`
	Sentiment    Sentiment          `json:"sentiment,omitempty"`
	CustomerRef  string             `json:"customer_ref,omitempty"`
	Status       ConversationStatus `json:"status,omitempty"`
	MessageCount int                `json:"message_count"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// CustomerID parses the customer reference. A reference that is not a UUID is
// treated as a new or anonymous customer, never as an error.
func (c *Conversation) CustomerID() (uuid.UUID, bool) {
	if c.CustomerRef == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.CustomerRef)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
