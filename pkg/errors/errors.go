package errors

import "fmt"

var (
	// JWT и токены
	ErrInvalidSigningMethod = fmt.Errorf("invalid token signing method")
	ErrInvalidToken         = fmt.Errorf("invalid token")
	ErrTokenExpired         = fmt.Errorf("token has expired")
	ErrTokenNotYetValid     = fmt.Errorf("token is not valid yet")

	// Авторизация
	ErrEmptyAuthHeader   = fmt.Errorf("authorization header is missing")
	ErrInvalidAuthHeader = fmt.Errorf("authorization header is malformed")
	ErrUnauthorized      = fmt.Errorf("unauthorized")
	ErrForbidden         = fmt.Errorf("you are not allowed to perform this action on the order")

	// Контекст
	ErrActorNotFoundInContext = fmt.Errorf("actor not found in request context")

	// Жизненный цикл заказа
	ErrNotFound            = fmt.Errorf("order not found")
	ErrInvalidTransition   = fmt.Errorf("the order cannot move to the requested status from its current status")
	ErrAlreadyClaimed      = fmt.Errorf("this order has already been picked up by another agent")
	ErrStorageUnavailable  = fmt.Errorf("order storage is unavailable")
	ErrIdempotencyConflict = fmt.Errorf("an order with this idempotency key is still being created")

	// Общие
	ErrBadRequest = fmt.Errorf("bad request")
)

type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func NewInvalidInputError(format string, args ...interface{}) error {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}

// HttpError несёт код ответа и сообщение для клиента; Err остаётся только в логах.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Details interface{}
	Context map[string]interface{}
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HttpError) Unwrap() error { return e.Err }

func NewHttpError(code int, message string, err error, ctx map[string]interface{}) *HttpError {
	return &HttpError{Code: code, Message: message, Err: err, Context: ctx}
}
