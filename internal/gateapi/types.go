package gateapi

import (
	"strings"
	"unicode/utf8"

	"github.com/rafaeljc/herald/internal/dispatch"
	"github.com/rafaeljc/herald/internal/notifier"
	"github.com/rafaeljc/herald/internal/ruleengine"
	"github.com/rafaeljc/herald/internal/stats"
)

// maxRecipientIDLength bounds recipient identifiers, matching the rules table column.
const maxRecipientIDLength = 255

// NotificationRequest defines the payload of the evaluate and send endpoints.
type NotificationRequest struct {
	// RecipientID selects whose rules apply. Required.
	RecipientID string `json:"recipient_id"`

	// Content is the notification body the content rules inspect.
	Content string `json:"content"`

	// Variables feed composite rules, addressing and templates.
	Variables map[string]any `json:"variables,omitempty"`
}

// Sanitize trims the recipient identifier. Content is passed through untouched
// because rules match on it verbatim.
func (r *NotificationRequest) Sanitize() {
	r.RecipientID = strings.TrimSpace(r.RecipientID)
}

// Validate checks required fields and limits.
func (r *NotificationRequest) Validate() *ErrorResponse {
	return validateRecipientID(r.RecipientID)
}

// toDomain maps the DTO onto the notifier request.
func (r *NotificationRequest) toDomain() notifier.Request {
	return notifier.Request{
		RecipientID: r.RecipientID,
		Content:     r.Content,
		Variables:   r.Variables,
	}
}

func validateRecipientID(id string) *ErrorResponse {
	if id == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "recipient_id is required",
		}
	}
	if utf8.RuneCountInString(id) > maxRecipientIDLength {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "recipient_id must be at most 255 characters",
		}
	}
	return nil
}

// StatsResponse is the stats view of one recipient.
type StatsResponse struct {
	RecipientID string `json:"recipient_id"`
	stats.Stats
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_BLOCKED").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details contains optional context (e.g., the failing channel).
	Details map[string]string `json:"details,omitempty"`

	// Result carries the evaluation that led to a block.
	Result *ruleengine.Result `json:"result,omitempty"`

	// Receipts lists deliveries that went out before a dispatch failed.
	Receipts []dispatch.Receipt `json:"receipts,omitempty"`
}
