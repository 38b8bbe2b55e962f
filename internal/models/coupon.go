package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponStatus представляет статус купона
type CouponStatus int

const (
	CouponStatusUnused  CouponStatus = 1
	CouponStatusUsed    CouponStatus = 2
	CouponStatusExpired CouponStatus = 3
	CouponStatusVoided  CouponStatus = 4
)

// Coupon выданный пользователю купон.
// Условия скидки копируются из активности в момент выдачи.
type Coupon struct {
	ID              int64           `json:"id" db:"id"`
	ActivityID      int64           `json:"activity_id" db:"activity_id"`
	Name            string          `json:"name" db:"name"`
	Type            ActivityType    `json:"type" db:"type"`
	DiscountAmount  decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	AmountCondition decimal.Decimal `json:"amount_condition" db:"amount_condition"`
	DiscountRate    int             `json:"discount_rate" db:"discount_rate"`
	ValidityTime    time.Time       `json:"validity_time" db:"validity_time"`
	Status          CouponStatus    `json:"status" db:"status"`
	UserID          int64           `json:"user_id" db:"user_id"`
	UserName        string          `json:"user_name" db:"user_name"`
	UserPhone       string          `json:"user_phone" db:"user_phone"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// NewCoupon снимок условий активности для пользователя на момент now
func NewCoupon(id int64, activity *Activity, user *User, now time.Time) *Coupon {
	return &Coupon{
		ID:              id,
		ActivityID:      activity.ID,
		Name:            activity.Name,
		Type:            activity.Type,
		DiscountAmount:  activity.DiscountAmount,
		AmountCondition: activity.AmountCondition,
		DiscountRate:    activity.DiscountRate,
		ValidityTime:    now.AddDate(0, 0, activity.ValidityDays),
		Status:          CouponStatusUnused,
		UserID:          user.ID,
		UserName:        user.Nickname,
		UserPhone:       user.Phone,
		CreatedAt:       now,
	}
}
