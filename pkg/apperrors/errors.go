package apperrors

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrGateway            = errors.New("model gateway error")
	ErrModelOutputInvalid = errors.New("model output invalid after repair")
	ErrSchemaFetch        = errors.New("schema fetch failed")
	ErrQuery              = errors.New("query failed")
	ErrNotConfigured      = errors.New("not configured")
)
