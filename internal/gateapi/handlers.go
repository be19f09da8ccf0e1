package gateapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/herald/internal/dispatch"
	"github.com/rafaeljc/herald/internal/logger"
	"github.com/rafaeljc/herald/internal/notifier"
)

// handleEvaluate processes POST /api/v1/notifications/evaluate.
// It is a dry run: the decision is returned with 200 whether or not it blocks.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeNotification(w, r)
	if !ok {
		return
	}

	result, err := a.notifier.Evaluate(r.Context(), req.toDomain())
	if err != nil {
		a.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// handleSend processes POST /api/v1/notifications/send.
//
// Responses:
// 200 with the outcome when the notification went out.
// 403 ERR_BLOCKED with the evaluation when a rule blocked it.
// 422 when a rule references an unusable template or channel.
// 502 ERR_DELIVERY_FAILED when a channel failed to deliver.
//
// Error responses after a partial delivery list the receipts that went out.
func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	req, ok := a.decodeNotification(w, r)
	if !ok {
		return
	}

	outcome, err := a.notifier.Send(r.Context(), req.toDomain())
	switch {
	case err == nil:
	case outcome != nil && errors.Is(err, notifier.ErrStatsNotRecorded):
		// Already delivered: a stats failure is logged, not returned.
		log.Error("failed to record notification stats",
			slog.String("recipient_id", req.RecipientID),
			slog.String("error", err.Error()),
		)
	default:
		status, resp := a.errorResponse(r, err)
		if outcome != nil {
			resp.Receipts = outcome.Receipts
		}
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	if outcome.Blocked {
		result := outcome.Result
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_BLOCKED",
			Message: outcome.BlockReason,
			Result:  &result,
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, outcome)
}

// handleGetStats processes GET /api/v1/recipients/{recipientID}/stats.
func (a *API) handleGetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := a.recipientParam(w, r)
	if !ok {
		return
	}

	st, err := a.stats.RecipientStats(r.Context(), id)
	if err != nil {
		a.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, StatsResponse{RecipientID: id, Stats: st})
}

// handleRecordSend processes POST /api/v1/recipients/{recipientID}/stats.
// It records a send made outside the gate and returns the updated stats.
func (a *API) handleRecordSend(w http.ResponseWriter, r *http.Request) {
	id, ok := a.recipientParam(w, r)
	if !ok {
		return
	}

	if err := a.stats.UpdateStats(r.Context(), id); err != nil {
		a.renderError(w, r, err)
		return
	}

	st, err := a.stats.RecipientStats(r.Context(), id)
	if err != nil {
		a.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, StatsResponse{RecipientID: id, Stats: st})
}

func (a *API) decodeNotification(w http.ResponseWriter, r *http.Request) (*NotificationRequest, bool) {
	log := logger.FromContext(r.Context())

	// Numbers stay json.Number so variables keep the literal the caller sent.
	var req NotificationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return nil, false
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return nil, false
	}
	return &req, true
}

func (a *API) recipientParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "recipientID"))
	if errResp := validateRecipientID(id); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return "", false
	}
	return id, true
}

// renderError maps service errors onto HTTP responses.
func (a *API) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := a.errorResponse(r, err)
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func (a *API) errorResponse(r *http.Request, err error) (int, ErrorResponse) {
	var deliveryErr *dispatch.DeliveryError
	switch {
	case errors.Is(err, notifier.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorResponse{Code: "ERR_INVALID_INPUT", Message: err.Error()}

	case errors.Is(err, dispatch.ErrTemplateNotFound),
		errors.Is(err, dispatch.ErrTemplateChannelMismatch):
		return http.StatusUnprocessableEntity, ErrorResponse{Code: "ERR_TEMPLATE", Message: err.Error()}

	case errors.Is(err, dispatch.ErrUnsupportedChannel),
		errors.Is(err, dispatch.ErrChannelNotConfigured):
		return http.StatusUnprocessableEntity, ErrorResponse{Code: "ERR_CHANNEL_UNAVAILABLE", Message: err.Error()}

	case errors.As(err, &deliveryErr):
		return http.StatusBadGateway, ErrorResponse{
			Code:    "ERR_DELIVERY_FAILED",
			Message: "Notification delivery failed",
			Details: map[string]string{
				"channel": string(deliveryErr.Channel),
				"rule_id": deliveryErr.RuleID,
			},
		}

	default:
		logger.FromContext(r.Context()).Error("request failed", slog.String("error", err.Error()))
		return http.StatusInternalServerError, ErrorResponse{Code: "ERR_INTERNAL", Message: "Internal server error"}
	}
}
