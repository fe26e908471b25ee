package store

import "errors"

// ErrUnknownDataType is returned by any operation naming a type that is
// not currently registered.
var ErrUnknownDataType = errors.New("store: unknown data type")

// ErrInvalidKey is returned when a record key is empty.
var ErrInvalidKey = errors.New("store: record key must not be empty")

// ErrInvalidTypeName is returned when a type name is empty or exceeds
// DataTypeNameMax.
var ErrInvalidTypeName = errors.New("store: invalid type name")

// ErrInvalidConfig is returned when a TypeConfig carries a non-positive
// updateInterval or bleachTTL.
var ErrInvalidConfig = errors.New("store: updateInterval and bleachTTL must be positive")
