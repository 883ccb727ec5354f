/*
Copyright 2025 Memris Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package storage

import "errors"

var (
	// ErrOutOfBounds is returned for any column or offset access outside
	// the allocated row space. Inside query execution it indicates a
	// kernel bug and aborts the query.
	ErrOutOfBounds = errors.New("offset out of bounds")

	// ErrNotFound is returned when a row id has no live mapping
	ErrNotFound = errors.New("row not found")

	// ErrInvalidQuery is returned for validation failures at
	// query-build time: unknown columns, unsupported operators,
	// malformed predicate shapes.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrKindMismatch is returned when a value's kind does not match
	// the column or comparison it is used with
	ErrKindMismatch = errors.New("kind mismatch")

	// ErrDuplicateID is returned when inserting a row id that is
	// already live
	ErrDuplicateID = errors.New("duplicate row id")

	// ErrClosed is returned for operations on a closed engine or table
	ErrClosed = errors.New("engine closed")

	// ErrCapacityExceeded is returned when a table cannot grow past its
	// configured maximum page count
	ErrCapacityExceeded = errors.New("table capacity exceeded")
)
