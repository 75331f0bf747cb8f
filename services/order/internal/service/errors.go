package service

import (
	"errors"

	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
)

var (
	ErrNotFound          = errors.New("not found")        // 404
	ErrInvalidArgument   = errors.New("invalid argument") // 400
	ErrConflict          = errors.New("conflict")         // 409
	ErrResourceExhausted = pkgdb.ErrResourceExhausted     // 503
)
