package repo

import "errors"

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — нарушение уникальности (например, ключа идемпотентности).
	ErrAlreadyExists = errors.New("already exists")
)
