// store/store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the key-value persistence surface. Apply commits every mutation
// or none of them.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
	Apply(ctx context.Context, mutations ...Mutation) error
	Close() error
}

// Mutation is one write inside an atomic batch. A nil Value deletes the key.
type Mutation struct {
	Key   string
	Value *string
}

// Put builds a set mutation.
func Put(key, value string) Mutation {
	return Mutation{Key: key, Value: &value}
}

// Delete builds a delete mutation.
func Delete(key string) Mutation {
	return Mutation{Key: key}
}

// PutJSON marshals v and builds a set mutation.
func PutJSON(key string, v any) (Mutation, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Mutation{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return Put(key, string(b)), nil
}

// GetJSON loads key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
