package service

import "errors"

var (
	// ErrInvalidOrExpired covers malformed, unknown, rotated and lapsed
	// barcodes alike; callers cannot tell which case occurred.
	ErrInvalidOrExpired = errors.New("invalid or expired barcode")

	// ErrEmptyBarcode is returned when no barcode value was supplied.
	ErrEmptyBarcode = errors.New("barcode value is required")

	// ErrTokenCollision means token creation hit a unique key twice in a
	// row and no active token could be found afterwards.
	ErrTokenCollision = errors.New("token creation collided")

	// ErrActiveOutsideWindow means the member already holds an active token
	// for a later window than the one requested, so no token can be created.
	ErrActiveOutsideWindow = errors.New("active token belongs to another window")
)
