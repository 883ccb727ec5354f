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
package memris

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Thejuampi/memris-sub010/internal/storage"
)

// Codec converts between an application Go type and the engine's
// storage value representation.
type Codec interface {
	Encode(v any) (storage.Value, error)
	Decode(v storage.Value) (any, error)
}

// CodecRegistry maps Go types to codecs. Every Engine owns its own
// registry; there is no process-wide instance.
type CodecRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Codec
}

// NewCodecRegistry creates a registry with codecs for the primitive
// kinds plus time.Time stored as epoch nanoseconds.
func NewCodecRegistry() *CodecRegistry {
	r := &CodecRegistry{byType: make(map[reflect.Type]Codec)}
	r.Register(int(0), intCodec{})
	r.Register(int32(0), int32Codec{})
	r.Register(int64(0), int64Codec{})
	r.Register(float64(0), float64Codec{})
	r.Register(false, boolCodec{})
	r.Register("", stringCodec{})
	r.Register(time.Time{}, TimeCodec{})
	return r
}

// Register installs a codec for the type of the sample value,
// replacing any previous codec for that type.
func (r *CodecRegistry) Register(sample any, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[reflect.TypeOf(sample)] = c
}

// Lookup returns the codec registered for the type of the sample value
func (r *CodecRegistry) Lookup(sample any) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byType[reflect.TypeOf(sample)]
	return c, ok
}

// Encode converts a Go value to a storage value using the registered
// codec for its type. nil encodes as NULL; a storage.Value passes
// through unchanged.
func (r *CodecRegistry) Encode(v any) (storage.Value, error) {
	if v == nil {
		return storage.NewNull(storage.KindInt64), nil
	}
	if sv, ok := v.(storage.Value); ok {
		return sv, nil
	}
	c, ok := r.Lookup(v)
	if !ok {
		return storage.Value{}, fmt.Errorf("codec: %w: no codec for %T", storage.ErrKindMismatch, v)
	}
	return c.Encode(v)
}

// Decode converts a storage value to its natural Go representation.
// NULL decodes as nil. Columns holding codec-mapped types (time.Time
// stored as int64) decode to the underlying primitive; use the typed
// codec directly to recover the richer type.
func (r *CodecRegistry) Decode(v storage.Value) (any, error) {
	if v.Null {
		return nil, nil
	}
	switch v.K {
	case storage.KindInt32, storage.KindInt64:
		n, _ := v.AsInt64()
		return n, nil
	case storage.KindFloat64:
		f, _ := v.AsFloat64()
		return f, nil
	case storage.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case storage.KindString:
		s, _ := v.AsString()
		return s, nil
	}
	return nil, fmt.Errorf("codec: %w: kind %v", storage.ErrKindMismatch, v.K)
}

type intCodec struct{}

func (intCodec) Encode(v any) (storage.Value, error) {
	n, ok := v.(int)
	if !ok {
		return storage.Value{}, fmt.Errorf("codec: %w: want int, got %T", storage.ErrKindMismatch, v)
	}
	return storage.NewInt64(int64(n)), nil
}

func (intCodec) Decode(v storage.Value) (any, error) {
	n, ok := v.AsInt64()
	if !ok {
		return nil, fmt.Errorf("codec: %w: not an integer", storage.ErrKindMismatch)
	}
	return int(n), nil
}

type int32Codec struct{}

func (int32Codec) Encode(v any) (storage.Value, error) {
	n, ok := v.(int32)
	if !ok {
		return storage.Value{}, fmt.Errorf("codec: %w: want int32, got %T", storage.ErrKindMismatch, v)
	}
	return storage.NewInt32(n), nil
}

func (int32Codec) Decode(v storage.Value) (any, error) {
	n, ok := v.AsInt64()
	if !ok {
		return nil, fmt.Errorf("codec: %w: not an integer", storage.ErrKindMismatch)
	}
	return int32(n), nil
}

type int64Codec struct{}

func (int64Codec) Encode(v any) (storage.Value, error) {
	n, ok := v.(int64)
	if !ok {
		return storage.Value{}, fmt.Errorf("codec: %w: want int64, got %T", storage.ErrKindMismatch, v)
	}
	return storage.NewInt64(n), nil
}

func (int64Codec) Decode(v storage.Value) (any, error) {
	n, ok := v.AsInt64()
	if !ok {
		return nil, fmt.Errorf("codec: %w: not an integer", storage.ErrKindMismatch)
	}
	return n, nil
}

type float64Codec struct{}

func (float64Codec) Encode(v any) (storage.Value, error) {
	f, ok := v.(float64)
	if !ok {
		return storage.Value{}, fmt.Errorf("codec: %w: want float64, got %T", storage.ErrKindMismatch, v)
	}
	return storage.NewFloat64(f), nil
}

func (float64Codec) Decode(v storage.Value) (any, error) {
	f, ok := v.AsFloat64()
	if !ok {
		return nil, fmt.Errorf("codec: %w: not a float", storage.ErrKindMismatch)
	}
	return f, nil
}

type boolCodec struct{}

func (boolCodec) Encode(v any) (storage.Value, error) {
	b, ok := v.(bool)
	if !ok {
		return storage.Value{}, fmt.Errorf("codec: %w: want bool, got %T", storage.ErrKindMismatch, v)
	}
	return storage.NewBool(b), nil
}

func (boolCodec) Decode(v storage.Value) (any, error) {
	b, ok := v.AsBool()
	if !ok {
		return nil, fmt.Errorf("codec: %w: not a bool", storage.ErrKindMismatch)
	}
	return b, nil
}

type stringCodec struct{}

func (stringCodec) Encode(v any) (storage.Value, error) {
	s, ok := v.(string)
	if !ok {
		return storage.Value{}, fmt.Errorf("codec: %w: want string, got %T", storage.ErrKindMismatch, v)
	}
	return storage.NewString(s), nil
}

func (stringCodec) Decode(v storage.Value) (any, error) {
	s, ok := v.AsString()
	if !ok {
		return nil, fmt.Errorf("codec: %w: not a string", storage.ErrKindMismatch)
	}
	return s, nil
}

// TimeCodec stores time.Time as UTC epoch nanoseconds in an int64
// column, preserving sort order for range indexes.
type TimeCodec struct{}

func (TimeCodec) Encode(v any) (storage.Value, error) {
	t, ok := v.(time.Time)
	if !ok {
		return storage.Value{}, fmt.Errorf("codec: %w: want time.Time, got %T", storage.ErrKindMismatch, v)
	}
	return storage.NewInt64(t.UnixNano()), nil
}

func (TimeCodec) Decode(v storage.Value) (any, error) {
	n, ok := v.AsInt64()
	if !ok {
		return nil, fmt.Errorf("codec: %w: not an epoch-nanos value", storage.ErrKindMismatch)
	}
	return time.Unix(0, n).UTC(), nil
}
