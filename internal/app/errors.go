package app

import "fmt"

// DomainError is the service layer's way of telling the HTTP boundary
// exactly what to send: status and machine-readable code are part of the
// contract, Message is safe to show callers, Details carries structured
// extras such as the current version on a conflict.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
