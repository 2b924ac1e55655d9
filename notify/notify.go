// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package notify writes notification rows and pushes them to the owner's
// realtime topic.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/realtime"
)

// Publisher is the subset of realtime.Hub used for delivery.
type Publisher interface {
	Publish(topic, eventType string, payload any)
}

// Create inserts a notification. Pass a *sql.Tx to make it part of a larger
// change; deliver the returned value with Deliver after commit.
func Create(ctx context.Context, q db.Querier, userID, kind string, actorID, pollID *string, message string, now time.Time) (models.Notification, error) {
	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		ActorID:   actorID,
		PollID:    pollID,
		Message:   message,
		CreatedAt: now,
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO notification (id, user_id, kind, actor_id, poll_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`, n.ID, n.UserID, n.Kind, n.ActorID, n.PollID, n.Message, n.CreatedAt)
	if err != nil {
		return models.Notification{}, fmt.Errorf("failed to insert notification: %w", err)
	}
	return n, nil
}

// Deliver publishes notifications to their owners' topics.
func Deliver(pub Publisher, ns ...models.Notification) {
	for _, n := range ns {
		pub.Publish(realtime.UserTopic(n.UserID), realtime.EventNotification, n)
	}
}

// Message builders. Notifications are stored pre-rendered in Thai.

func NewFollowerMessage(displayName string) string {
	return fmt.Sprintf("%s เริ่มติดตามคุณ", displayName)
}

func PollClosedMessage(question string) string {
	return fmt.Sprintf("โพล \"%s\" ปิดโหวตแล้ว รอประกาศผล", question)
}

func PollResolvedMessage(question string, correct bool, delta int) string {
	if correct {
		return fmt.Sprintf("คุณทายถูก! \"%s\" (+%d คะแนน)", question, delta)
	}
	return fmt.Sprintf("คุณทายผิด \"%s\" (%d คะแนน)", question, delta)
}
