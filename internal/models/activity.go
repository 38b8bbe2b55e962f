package models

import (
	"time"

	"market-system/internal/apperror"
	"market-system/internal/validate"

	"github.com/shopspring/decimal"
)

// ActivityStatus представляет сохранённый статус активности
type ActivityStatus int

const (
	ActivityStatusNotStarted   ActivityStatus = 1
	ActivityStatusDistributing ActivityStatus = 2
	ActivityStatusExpired      ActivityStatus = 3
	ActivityStatusVoided       ActivityStatus = 4
)

// ActivityType задаёт механику скидки
type ActivityType int

const (
	// ActivityTypeAmountOff скидка суммой при достижении порога
	ActivityTypeAmountOff ActivityType = 1
	// ActivityTypeRate скидка в процентах
	ActivityTypeRate ActivityType = 2
)

// TabType выбирает вкладку витрины купонов
type TabType int

const (
	TabSeizing  TabType = 1
	TabUpcoming TabType = 2
)

// Activity представляет акцию с ограниченным числом купонов
type Activity struct {
	ID                  int64           `json:"id" db:"id"`
	Name                string          `json:"name" db:"name"`
	Type                ActivityType    `json:"type" db:"type"`
	DiscountAmount      decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	AmountCondition     decimal.Decimal `json:"amount_condition" db:"amount_condition"`
	DiscountRate        int             `json:"discount_rate" db:"discount_rate"`
	ValidityDays        int             `json:"validity_days" db:"validity_days"`
	DistributeStartTime time.Time       `json:"distribute_start_time" db:"distribute_start_time"`
	DistributeEndTime   time.Time       `json:"distribute_end_time" db:"distribute_end_time"`
	TotalNum            int             `json:"total_num" db:"total_num"`
	StockNum            int             `json:"stock_num" db:"stock_num"`
	Status              ActivityStatus  `json:"status" db:"status"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// EffectiveStatus вычисляет статус активности по окну раздачи [start, end).
// Сохранённый статус учитывается только пока он NOT_STARTED или DISTRIBUTING:
// окно открыто -> DISTRIBUTING, окно закрыто -> EXPIRED.
// Остальные статусы (EXPIRED, VOIDED) временем не меняются.
func EffectiveStatus(start, end time.Time, status ActivityStatus, now time.Time) ActivityStatus {
	if status != ActivityStatusNotStarted && status != ActivityStatusDistributing {
		return status
	}
	if !now.Before(end) {
		return ActivityStatusExpired
	}
	if !now.Before(start) {
		return ActivityStatusDistributing
	}
	return status
}

// EffectiveStatus возвращает статус активности на момент now
func (a *Activity) EffectiveStatus(now time.Time) ActivityStatus {
	return EffectiveStatus(a.DistributeStartTime, a.DistributeEndTime, a.Status, now)
}

// ActivityDetail расширяет активность производными счётчиками
type ActivityDetail struct {
	Activity
	ReceiveNum  int `json:"receive_num"`
	WriteOffNum int `json:"write_off_num"`
}

// ActivityPageQuery описывает фильтры постраничного поиска
type ActivityPageQuery struct {
	ID       *int64          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Type     *ActivityType   `json:"type,omitempty"`
	Status   *ActivityStatus `json:"status,omitempty"`
	PageNo   int             `json:"page_no"`
	PageSize int             `json:"page_size"`
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Normalize подставляет значения страницы по умолчанию
func (q *ActivityPageQuery) Normalize() {
	if q.PageNo < 1 {
		q.PageNo = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
}

// Offset возвращает смещение для текущей страницы
func (q *ActivityPageQuery) Offset() int {
	return (q.PageNo - 1) * q.PageSize
}

// ActivityPage результат постраничного поиска
type ActivityPage struct {
	Total int64       `json:"total"`
	Pages int64       `json:"pages"`
	List  []*Activity `json:"list"`
}

// ActivitySaveRequest описывает создание или редактирование активности.
// ID == nil означает новую активность.
type ActivitySaveRequest struct {
	ID                  *int64          `json:"id,omitempty"`
	Name                string          `json:"name" validate:"required,max=64"`
	Type                ActivityType    `json:"type" validate:"oneof=1 2"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	AmountCondition     decimal.Decimal `json:"amount_condition"`
	DiscountRate        int             `json:"discount_rate"`
	ValidityDays        int             `json:"validity_days" validate:"min=1"`
	DistributeStartTime time.Time       `json:"distribute_start_time" validate:"required"`
	DistributeEndTime   time.Time       `json:"distribute_end_time" validate:"required,gtfield=DistributeStartTime"`
	TotalNum            int             `json:"total_num" validate:"min=1"`
}

// Check проверяет согласованность запроса на момент now
func (r *ActivitySaveRequest) Check(now time.Time) error {
	if err := validate.Struct(r); err != nil {
		return apperror.Validation(err.Error(), err)
	}
	if !r.DistributeEndTime.After(now) {
		return apperror.Validation("distribute_end_time must be in the future", nil)
	}

	switch r.Type {
	case ActivityTypeAmountOff:
		if !r.DiscountAmount.IsPositive() {
			return apperror.Validation("discount_amount must be positive", nil)
		}
		if r.AmountCondition.IsNegative() {
			return apperror.Validation("amount_condition must not be negative", nil)
		}
		if r.AmountCondition.IsPositive() && r.DiscountAmount.GreaterThanOrEqual(r.AmountCondition) {
			return apperror.Validation("discount_amount must be less than amount_condition", nil)
		}
	case ActivityTypeRate:
		if r.DiscountRate < 1 || r.DiscountRate > 99 {
			return apperror.Validation("discount_rate must be between 1 and 99", nil)
		}
	}
	return nil
}

// SeizeCouponInfo элемент витрины, хранящийся в кеше
type SeizeCouponInfo struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	Type                ActivityType    `json:"type"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	AmountCondition     decimal.Decimal `json:"amount_condition"`
	DiscountRate        int             `json:"discount_rate"`
	ValidityDays        int             `json:"validity_days"`
	DistributeStartTime time.Time       `json:"distribute_start_time"`
	DistributeEndTime   time.Time       `json:"distribute_end_time"`
	TotalNum            int             `json:"total_num"`
	RemainNum           int             `json:"remain_num,omitempty"`
	Status              ActivityStatus  `json:"status"`
}

// NewSeizeCouponInfo строит элемент витрины из активности
func NewSeizeCouponInfo(a *Activity) *SeizeCouponInfo {
	return &SeizeCouponInfo{
		ID:                  a.ID,
		Name:                a.Name,
		Type:                a.Type,
		DiscountAmount:      a.DiscountAmount,
		AmountCondition:     a.AmountCondition,
		DiscountRate:        a.DiscountRate,
		ValidityDays:        a.ValidityDays,
		DistributeStartTime: a.DistributeStartTime,
		DistributeEndTime:   a.DistributeEndTime,
		TotalNum:            a.TotalNum,
		Status:              a.Status,
	}
}
