package services

import (
	"errors"

	"market-system/internal/apperror"
)

// Ошибки обработки события захвата купона.
// Каждая отменяет текущую транзакцию целиком.
var (
	ErrUserNotFound       = apperror.NotFound("user not found", nil)
	ErrActivityNotFound   = apperror.NotFound("activity not found", nil)
	ErrInsufficientStock  = apperror.Conflict("insufficient stock", nil)
	ErrPersistenceFailure = apperror.Persistence("failed to persist coupon", nil)
)

// errDuplicateGrab откатывает транзакцию, когда купон по паре (activity, user) уже выдан
var errDuplicateGrab = errors.New("coupon already issued for user")
