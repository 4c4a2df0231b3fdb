// Package persistence provides the durable key-value abstraction workflow storage is built on.
package persistence

import (
	"context"
	"strings"
)

// Backend is a durable ordered key-value map.
//
// Apply must be atomic: either every operation of the batch becomes visible or none does.
// Implementations are safe for concurrent use; ordering between concurrent batches that
// touch different keys is unspecified.
type Backend interface {
	// Get returns the value stored at key. found is false when the key does not exist.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Keys returns every key starting with prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Apply atomically applies the batch operations in order.
	Apply(ctx context.Context, batch *Batch) error

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// OpKind distinguishes batch operations.
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
)

// Op is one staged mutation.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
}

// Batch stages mutations in memory so they can be applied in one step.
type Batch struct {
	Ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put stages a write.
func (b *Batch) Put(key string, value []byte) {
	if value == nil {
		value = []byte{}
	}

	b.Ops = append(b.Ops, Op{Kind: OpPut, Key: key, Value: value})
}

// Delete stages a removal. Deleting a missing key is not an error.
func (b *Batch) Delete(key string) {
	b.Ops = append(b.Ops, Op{Kind: OpDelete, Key: key})
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.Ops)
}

// JoinKey builds a key from its segments separated by "/".
func JoinKey(segments ...string) string {
	return strings.Join(segments, "/")
}
