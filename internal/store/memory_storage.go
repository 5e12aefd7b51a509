package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/spf13/cast"
)

type memEntry struct {
	obj       any
	fields    map[string]any
	fieldExp  map[string]time.Time
	expiresAt time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && e.expiresAt.Before(now)
}

// MemoryStorage is the in-process Storage backend for single-node deployments
// and tests. It mirrors the redis hash semantics: lazy key/field expiry and
// mutex-serialized counter increments.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*memEntry),
	}
}

// entry returns the live entry for key, evicting it first if expired.
// Callers must hold mu.
func (s *MemoryStorage) entry(key string, create bool) *memEntry {
	now := time.Now()
	e, ok := s.entries[key]
	if ok && e.expired(now) {
		delete(s.entries, key)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &memEntry{
			fields:   make(map[string]any),
			fieldExp: make(map[string]time.Time),
		}
		s.entries[key] = e
	}
	for field, exp := range e.fieldExp {
		if exp.Before(now) {
			delete(e.fields, field)
			delete(e.fieldExp, field)
		}
	}
	return e
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, false)
	if e == nil || e.obj == nil {
		return ErrNotFound
	}
	dst := reflect.ValueOf(val)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return fmt.Errorf("memory storage: destination must be a non-nil pointer")
	}
	src := reflect.ValueOf(e.obj)
	if !src.Type().AssignableTo(dst.Elem().Type()) {
		return fmt.Errorf("memory storage: cannot scan %T into %T", e.obj, val)
	}
	dst.Elem().Set(src)
	return nil
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, true)
	e.obj = reflect.Indirect(reflect.ValueOf(val)).Interface()
	if expiresIn > 0 {
		e.expiresAt = time.Now().Add(expiresIn)
	} else {
		e.expiresAt = time.Time{}
	}
	return nil
}

func (s *MemoryStorage) Save(ctx context.Context, key string, val any) error {
	return s.Set(ctx, key, val, 0)
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry(key, false) == nil {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(key, false); e != nil {
		e.expiresAt = expiresAt
	}
	return nil
}

func (s *MemoryStorage) SetAttr(ctx context.Context, key string, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, true)
	e.fields[field] = val
	delete(e.fieldExp, field)
	return nil
}

func (s *MemoryStorage) GetAttr(ctx context.Context, key, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, false)
	if e == nil {
		return ErrNotFound
	}
	raw, ok := e.fields[field]
	if !ok {
		return ErrNotFound
	}
	return scanAttr(raw, val)
}

func (s *MemoryStorage) IncrAttr(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, true)
	current, err := cast.ToInt64E(e.fields[field])
	if err != nil {
		current = 0
	}
	current += delta
	e.fields[field] = current
	return current, nil
}

func (s *MemoryStorage) ExpireAttr(ctx context.Context, key string, expiresAt time.Time, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key, false)
	if e == nil {
		return nil
	}
	for _, field := range fields {
		if _, ok := e.fields[field]; ok {
			e.fieldExp[field] = expiresAt
		}
	}
	return nil
}

func (s *MemoryStorage) DelAttr(ctx context.Context, key string, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entry(key, false); e != nil {
		delete(e.fields, field)
		delete(e.fieldExp, field)
	}
	return nil
}

func scanAttr(raw any, val any) error {
	switch dst := val.(type) {
	case *string:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return err
		}
		*dst = s
	case *int:
		n, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		*dst = n
	case *int64:
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return err
		}
		*dst = n
	case *bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		*dst = b
	case *time.Time:
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return err
		}
		*dst = t
	default:
		return fmt.Errorf("memory storage: unsupported scan destination %T", val)
	}
	return nil
}
