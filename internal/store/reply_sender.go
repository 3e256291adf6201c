package store

import (
	"context"
	"log/slog"
	"time"
)

// ReplySendFunc performs the actual channel send for one outbox message.
type ReplySendFunc func(ctx context.Context, msg OutboxMessage) error

// ReplySender periodically claims due outbox replies and attempts to
// deliver them, so the webhook's fast-ack never waits on a slow channel
// and delivery survives process restarts.
type ReplySender struct {
	store          Store
	sendFunc       ReplySendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
}

// NewReplySender creates a ReplySender polling at the given interval.
func NewReplySender(st Store, sendFunc ReplySendFunc, pollInterval time.Duration) *ReplySender {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &ReplySender{
		store:          st,
		sendFunc:       sendFunc,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
	}
}

// RecoverStaleReplies requeues replies stuck in sending state from a
// previous crash. Should be called once at startup.
func (s *ReplySender) RecoverStaleReplies() error {
	staleBefore := time.Now().Add(-s.staleThreshold)
	n, err := s.store.RequeueStaleSending(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("ReplySender.RecoverStaleReplies: requeued stale replies", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *ReplySender) Run(ctx context.Context) {
	slog.Info("ReplySender.Run: starting reply sender", "pollInterval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ReplySender.Run: stopping")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// maxRetryBackoff bounds the retry delay so long-failing replies keep
// retrying hourly instead of the shift overflowing into the past.
const maxRetryBackoff = time.Hour

// retryBackoff returns the delay before the next attempt: 10s, 20s,
// 40s, ... capped at maxRetryBackoff.
func retryBackoff(attempts int) time.Duration {
	backoff := 10 * time.Second
	for i := 0; i < attempts && backoff < maxRetryBackoff; i++ {
		backoff *= 2
	}
	if backoff > maxRetryBackoff {
		backoff = maxRetryBackoff
	}
	return backoff
}

func (s *ReplySender) poll(ctx context.Context) {
	now := time.Now()
	msgs, err := s.store.ClaimDueReplies(now, s.claimLimit)
	if err != nil {
		slog.Error("ReplySender.poll: claim failed", "error", err)
		return
	}

	for _, msg := range msgs {
		slog.Debug("ReplySender.poll: sending reply", "id", msg.ID, "recipient", msg.Recipient)
		if err := s.sendFunc(ctx, msg); err != nil {
			slog.Error("ReplySender.poll: send failed", "id", msg.ID, "error", err)
			if err := s.store.FailReply(msg.ID, err.Error(), now.Add(retryBackoff(msg.Attempts))); err != nil {
				slog.Error("ReplySender.poll: fail reply error", "id", msg.ID, "error", err)
			}
		} else {
			if err := s.store.MarkReplySent(msg.ID); err != nil {
				slog.Error("ReplySender.poll: mark sent error", "id", msg.ID, "error", err)
			}
			slog.Debug("ReplySender.poll: reply sent", "id", msg.ID)
		}
	}
}
