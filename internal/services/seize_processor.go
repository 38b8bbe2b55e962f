package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"market-system/internal/apperror"
	"market-system/internal/idgen"
	"market-system/internal/logger"
	"market-system/internal/metrics"
	"market-system/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UserDirectory ищет пользователя во внешнем справочнике.
// Отсутствующий пользователь возвращается как (nil, nil).
type UserDirectory interface {
	FindByID(ctx context.Context, userID int64) (*models.User, error)
}

// SeizeStore хранилище, в котором выдаются купоны.
type SeizeStore interface {
	GetActivity(ctx context.Context, id int64) (*models.Activity, error)
	IssueCoupon(ctx context.Context, c *models.Coupon) (bool, error)
}

// SeizeCouponProcessor превращает событие захвата в выданный купон.
type SeizeCouponProcessor struct {
	users   UserDirectory
	store   SeizeStore
	ids     idgen.Generator
	log     *logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewSeizeCouponProcessor создаёт обработчик событий захвата.
func NewSeizeCouponProcessor(users UserDirectory, store SeizeStore, ids idgen.Generator, log *logger.Logger, m *metrics.Metrics) *SeizeCouponProcessor {
	return &SeizeCouponProcessor{
		users:   users,
		store:   store,
		ids:     ids,
		log:     log,
		metrics: m,
		tracer:  otel.Tracer("market-system/seize"),
		now:     time.Now,
	}
}

// SingleProcess обрабатывает одно событие: ключ сообщения содержит id пользователя,
// значение содержит id активности.
func (p *SeizeCouponProcessor) SingleProcess(ctx context.Context, msg models.SyncMessage) (err error) {
	ctx, span := p.tracer.Start(ctx, "seize.SingleProcess",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Queue),
			attribute.String("seize.trace_id", msg.TraceID),
		),
	)
	duplicate := false
	defer func() {
		if duplicate {
			p.metrics.GrabOutcome(metrics.OutcomeDuplicate)
		} else {
			p.metrics.GrabOutcome(outcomeOf(err))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	userID, activityID, err := parseGrab(msg)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("activity.id", activityID))

	user, err := p.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user %d: %w", userID, err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	activity, err := p.store.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}

	entry := p.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"activity_id": activityID,
		"trace_id":    msg.TraceID,
	})
	entry.Info("Grab event received")

	coupon := models.NewCoupon(p.ids.NextID(), activity, user, p.now())
	issued, err := p.store.IssueCoupon(ctx, coupon)
	if err != nil {
		return err
	}
	if !issued {
		duplicate = true
		entry.Warn("Coupon already issued for user, duplicate grab ignored")
		return nil
	}

	entry.WithField("coupon_id", coupon.ID).Info("Coupon issued")
	return nil
}

// BatchProcess не поддерживается для событий захвата: они обрабатываются только по одному.
func (p *SeizeCouponProcessor) BatchProcess(ctx context.Context, msgs []models.SyncMessage) error {
	p.log.WithField("count", len(msgs)).Info("Batch processing is not supported for hash-sourced grab events")
	return nil
}

func parseGrab(msg models.SyncMessage) (int64, int64, error) {
	userID, err := strconv.ParseInt(msg.Key, 10, 64)
	if err != nil {
		return 0, 0, apperror.Validation(fmt.Sprintf("invalid user id %q", msg.Key), err)
	}
	activityID, err := strconv.ParseInt(msg.Value, 10, 64)
	if err != nil {
		return 0, 0, apperror.Validation(fmt.Sprintf("invalid activity id %q", msg.Value), err)
	}
	return userID, activityID, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeIssued
	case errors.Is(err, ErrUserNotFound):
		return metrics.OutcomeUserNotFound
	case errors.Is(err, ErrActivityNotFound):
		return metrics.OutcomeActivityNotFound
	case errors.Is(err, ErrInsufficientStock):
		return metrics.OutcomeInsufficientStock
	case apperror.Is(err, apperror.KindValidation):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeFailed
	}
}
