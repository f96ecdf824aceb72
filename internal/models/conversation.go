package models

import (
	"fmt"
	"strings"
	"time"
)

// ConversationTurn is one question/answer exchange within a chat session.
type ConversationTurn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// AskRequest is a question against a corpus, optionally within a session.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	K         int    `json:"k,omitempty"`
}

// Validate ensures the request has a question and normalizes k.
// k of zero means "use the corpus default"; negative k is rejected.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidRequest)
	}
	if r.K < 0 {
		return fmt.Errorf("%w: k must not be negative", ErrInvalidRequest)
	}
	if r.K > 100 {
		r.K = 100
	}
	return nil
}

// Answer is the result of an ask: the generated text plus the passages it was grounded on.
type Answer struct {
	Corpus    string `json:"corpus"`
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`
	Text      string `json:"answer"`
	Sources   []Hit  `json:"sources"`
	QueryTime int64  `json:"query_time_ms"`
}
