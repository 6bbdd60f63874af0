// Package notification sends messages through a notify.Notifier and keeps a
// delivery record for each attempt.
package notification

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/infrastructure/notify"
	"github.com/go-dead-mans-switch/internal/pkg/id"
)

type Service interface {
	// Dispatch sends msg on behalf of subjectID (a switch or claim id). The
	// returned Result is never an error: failures are recorded and logged.
	Dispatch(ctx context.Context, subjectID string, msg notify.Message) notify.Result
	ListBySubject(ctx context.Context, subjectID string) ([]domain.Delivery, error)
}

type deliveryStore interface {
	Put(ctx context.Context, d *domain.Delivery) error
	ListBySubject(ctx context.Context, subjectID string) ([]domain.Delivery, error)
}

type service struct {
	notifier notify.Notifier
	repo     deliveryStore
	clock    clock.Clock
}

func NewService(notifier notify.Notifier, repo deliveryStore, clk clock.Clock) Service {
	if clk == nil {
		clk = clock.New()
	}
	return &service{notifier: notifier, repo: repo, clock: clk}
}

func (s *service) Dispatch(ctx context.Context, subjectID string, msg notify.Message) notify.Result {
	res := s.notifier.Send(ctx, msg)
	if !res.Success {
		slog.Warn("notification not delivered",
			"subject_id", subjectID, "channel", msg.Channel, "template", msg.Template, "err", res.Error)
	}
	d := &domain.Delivery{
		DeliveryID: id.New(),
		SubjectID:  subjectID,
		Recipient:  msg.Recipient,
		Channel:    msg.Channel,
		Template:   msg.Template,
		Success:    res.Success,
		MessageID:  res.MessageID,
		Error:      res.Error,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.repo.Put(ctx, d); err != nil {
		slog.Error("record delivery", "subject_id", subjectID, "err", err)
	}
	return res
}

func (s *service) ListBySubject(ctx context.Context, subjectID string) ([]domain.Delivery, error) {
	return s.repo.ListBySubject(ctx, subjectID)
}
