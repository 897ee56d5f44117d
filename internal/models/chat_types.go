package models

import "time"

// ChatHistory defines the model for the 'ai_chat_history' table
type ChatHistory struct {
	ID          int64     `json:"id" db:"id"`
	UserID      *int64    `json:"userId,omitempty" db:"user_id"`
	UserMessage string    `json:"userMessage" db:"user_message"`
	AIResponse  string    `json:"aiResponse" db:"ai_response"`
	TokensUsed  int       `json:"tokensUsed" db:"tokens_used"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
