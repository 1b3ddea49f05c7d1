package service

import "errors"

var (
	ErrValidation = errors.New("validation")       // 400
	ErrNotFound   = errors.New("not found")        // 404
	ErrConflict   = errors.New("conflict")         // 409
	ErrForbidden  = errors.New("forbidden")        // 403
	ErrExternal   = errors.New("external service") // 502
	ErrSignature  = errors.New("signature")        // 400
	ErrInFlight   = errors.New("event in flight")  // 409
)

// errPayload marks a verified event that can never be processed. It is
// logged and acknowledged so the processor stops redelivering it.
var errPayload = errors.New("unprocessable event payload")
