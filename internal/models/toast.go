package models

import "time"

// ToastKind selects how a toast is styled.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
	ToastWarning ToastKind = "warning"
)

// Toast is an ephemeral notification shown on every open page.
type Toast struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	Kind       ToastKind `json:"kind"`
	DurationMs int64     `json:"durationMs"` // 0 means sticky
	CreatedAt  time.Time `json:"createdAt"`
}
