// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
)

type NotificationHandler struct {
	base
}

func NewNotificationHandler(d Deps) *NotificationHandler {
	return &NotificationHandler{base: newBase(d)}
}

// List handles GET /notifications, newest first. ?unread=true limits the
// list to unread notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	query := `
		SELECT id, user_id, kind, actor_id, poll_id, message, is_read, created_at
		FROM notification
		WHERE user_id = $1`
	if r.URL.Query().Get("unread") == "true" {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := h.db.QueryContext(r.Context(), query, caller(r).UserID, limit, offset)
	if err != nil {
		h.internalError(w, "failed to query notifications", err)
		return
	}
	defer rows.Close()

	items := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.ActorID, &n.PollID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			h.internalError(w, "failed to scan notification", err)
			return
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		h.internalError(w, "failed to read notifications", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.Notification]{
		Items:  items,
		Limit:  limit,
		Offset: offset,
	})
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	var n int
	err := h.db.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM notification WHERE user_id = $1 AND is_read = FALSE
	`, caller(r).UserID).Scan(&n)
	if err != nil {
		h.internalError(w, "failed to count notifications", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.UnreadCountResponse{Unread: n})
}

// MarkRead handles POST /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	res, err := h.db.ExecContext(r.Context(), `
		UPDATE notification SET is_read = TRUE WHERE id = $1 AND user_id = $2
	`, r.PathValue("id"), caller(r).UserID)
	if err != nil {
		h.internalError(w, "failed to mark notification", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	_, err := h.db.ExecContext(r.Context(), `
		UPDATE notification SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE
	`, caller(r).UserID)
	if err != nil {
		h.internalError(w, "failed to mark notifications", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
