package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	keyCartToken      = "cart_token"
	keySessionCookies = "session_cookies"
)

type ClientState struct {
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time
}

type TrackedOrder struct {
	TrackingToken string    `gorm:"primaryKey;size:128"`
	OrderID       int64     `gorm:"index"`
	Status        string    `gorm:"size:32;not null"`
	TotalAmount   string    `gorm:"size:32;not null"`
	PlacedAt      time.Time `gorm:"index;not null"`
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var row ClientState
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	row := ClientState{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&ClientState{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// CartToken returns the persisted cart token, or "" when none was saved.
func (s *Store) CartToken(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, keyCartToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s *Store) SaveCartToken(ctx context.Context, token string) error {
	return s.Put(ctx, keyCartToken, token)
}

// SessionCookies returns the refresh cookies saved by the last run.
func (s *Store) SessionCookies(ctx context.Context) ([]*http.Cookie, error) {
	v, err := s.Get(ctx, keySessionCookies)
	if errors.Is(err, ErrNotFound) || v == "" {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cookies, err := http.ParseCookie(v)
	if err != nil {
		return nil, fmt.Errorf("parse session cookies: %w", err)
	}
	return cookies, nil
}

// SaveSessionCookies persists cookies; an empty set forgets the session.
func (s *Store) SaveSessionCookies(ctx context.Context, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return s.Delete(ctx, keySessionCookies)
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return s.Put(ctx, keySessionCookies, strings.Join(parts, "; "))
}

func (s *Store) RememberOrder(ctx context.Context, o models.Order) error {
	placed := o.CreatedAt
	if placed.IsZero() {
		placed = time.Now().UTC()
	}
	row := TrackedOrder{
		TrackingToken: o.TrackingToken,
		OrderID:       o.OrderID,
		Status:        o.Status.String(),
		TotalAmount:   o.TotalAmount.String(),
		PlacedAt:      placed,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tracking_token"}},
		DoUpdates: clause.AssignmentColumns([]string{"status"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("remember order %s: %w", o.TrackingToken, err)
	}
	return nil
}

func (s *Store) RecentOrders(ctx context.Context, limit int) ([]TrackedOrder, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []TrackedOrder
	err := s.db.WithContext(ctx).Order("placed_at DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	return out, nil
}
