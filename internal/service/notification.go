package service

import (
	"context"
	"errors"
	"fmt"

	"marketplace-settlement/internal/model"
	"marketplace-settlement/internal/repository"

	"gorm.io/gorm"
)

type NotificationService interface {
	List(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

type notificationServiceImpl struct {
	repo repository.NotificationRepository
}

func NewNotificationService(notificationRepo repository.NotificationRepository) NotificationService {
	return &notificationServiceImpl{repo: notificationRepo}
}

func (s *notificationServiceImpl) List(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	notes, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notes, nil
}

func (s *notificationServiceImpl) MarkRead(ctx context.Context, userID, notificationID string) error {
	err := s.repo.MarkRead(ctx, notificationID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{ErrNotFound, "notification not found"}
	}
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
