package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kortexlabs/kortex/internal/domain"
)

type ConversationStore struct {
	db *pgxpool.Pool
}

func NewConversationStore(db *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{db: db}
}

const conversationColumns = `id, category, tags, sentiment, customer_ref, status, message_count, created_at, updated_at`

func (s *ConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := s.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Category, &c.Tags, &c.Sentiment, &c.CustomerRef, &c.Status, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ConversationStore) ListByTag(ctx context.Context, tag string, exclude uuid.UUID, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE $1 = ANY(tags) AND id <> $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		tag, exclude, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversations(rows)
}

func (s *ConversationStore) ListByCategory(ctx context.Context, category string, exclude uuid.UUID, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE category = $1 AND id <> $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		category, exclude, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversations(rows)
}

func (s *ConversationStore) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE customer_ref = $1::text
		 ORDER BY created_at DESC
		 LIMIT $2`,
		customerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversations(rows)
}

func scanConversations(rows pgx.Rows) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Category, &c.Tags, &c.Sentiment, &c.CustomerRef, &c.Status, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
