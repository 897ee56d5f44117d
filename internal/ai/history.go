package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

// Generator produces a reply and its token usage. *AIService implements it.
type Generator interface {
	GenerateResponse(ctx context.Context, userMessage, userRole string) (string, int, error)
}

// Assistant answers chat messages and records every exchange in
// ai_chat_history.
type Assistant struct {
	gen Generator
	db  database.Querier
	log *slog.Logger
}

func NewAssistant(gen Generator, db database.Querier, log *slog.Logger) *Assistant {
	return &Assistant{gen: gen, db: db, log: log.With("component", "Assistant")}
}

// Reply is one answered message.
type Reply struct {
	Response   string `json:"response"`
	TokensUsed int    `json:"tokensUsed"`
}

// Chat answers message for an optional signed-in user. A failure to store
// history is logged; the visitor still gets the answer.
func (a *Assistant) Chat(ctx context.Context, userID *int64, role, message string) (Reply, error) {
	response, tokens, err := a.gen.GenerateResponse(ctx, message, role)
	if err != nil {
		return Reply{}, err
	}

	h := models.ChatHistory{UserID: userID, UserMessage: message, AIResponse: response, TokensUsed: tokens, CreatedAt: time.Now()}
	if err := SaveHistory(ctx, a.db, &h); err != nil {
		a.log.Warn("Failed to save chat history", "error", err)
	}
	return Reply{Response: response, TokensUsed: tokens}, nil
}

func SaveHistory(ctx context.Context, q database.Querier, h *models.ChatHistory) error {
	query := `
		INSERT INTO ai_chat_history (user_id, user_message, ai_response, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?)`
	result, err := q.ExecContext(ctx, query, h.UserID, h.UserMessage, h.AIResponse, h.TokensUsed, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save chat history: %w", err)
	}
	h.ID, err = result.LastInsertId()
	return err
}
