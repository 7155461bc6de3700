package service

import (
	"context"
	"errors"
	"fmt"

	"playerwallet/internal/repository"
)

// 错误信息直接返回给客户端
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrPlayerNotFound    = errors.New("Player not found")
	ErrInsufficientFunds = errors.New("Insufficient balance")
	ErrLimitExceeded     = errors.New("Cash in limit exceeded")
	ErrConflict          = errors.New("Transaction conflict, please retry")
	ErrTimeout           = errors.New("Transaction timed out, please retry")
	ErrStorage           = errors.New("storage failure")

	ErrTransactionNotFound = errors.New("Transaction not found")
	ErrMessageNotFound     = errors.New("Message not found")

	ErrInvalidCredentials = errors.New("Invalid credentials.")
	ErrEmailTaken         = errors.New("Email is already registered.")
	ErrDuplicatePlayer    = errors.New("Player with same name and birthdate already exists.")
	ErrEmailNotFound      = errors.New("Email not found.")
	ErrInvalidResetToken  = errors.New("Invalid or expired token.")
	ErrResetTokenExpired  = errors.New("Token has expired.")
	ErrGoogleAccountTaken = errors.New("An account with this email already exists. Please login with email/password.")
	ErrInvalidGoogleToken = errors.New("Invalid Google token.")
	ErrUnauthorized       = errors.New("Unauthorized")
)

// InputError 参数校验失败；errors.Is(err, ErrInvalidInput) 为 true
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidInput(format string, args ...interface{}) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// fromStore 把存储层错误映射为业务错误
func fromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrLimitExceeded),
		errors.Is(err, ErrPlayerNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, repository.ErrPlayerNotFound):
		return ErrPlayerNotFound
	case errors.Is(err, repository.ErrHistoryNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, repository.ErrMessageNotFound):
		return ErrMessageNotFound
	case errors.Is(err, repository.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}
