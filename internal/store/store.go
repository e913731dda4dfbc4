// Package store provides the durable key-value persistence behind the
// document, annotation, label, and credential stores. Each logical
// store holds one JSON mapping per namespace. A Load that finds no
// backing object, or an unparseable one, returns an empty mapping —
// this leniency is part of the contract, not an accident.
package store

import (
	"context"
	"encoding/json"
)

// Logical store names. The global stores (credentials) use the empty
// namespace.
const (
	Documents   = "documents"
	Annotations = "annotations"
	Labels      = "labels"
	Users       = "users"
)

// GlobalNamespace addresses data that is not partitioned per user.
const GlobalNamespace = ""

// KV is the persistence contract the service layer works against. Save
// must replace the prior mapping so that no subsequent Load observes a
// torn write.
type KV interface {
	Load(ctx context.Context, store, namespace string) (map[string]json.RawMessage, error)
	Save(ctx context.Context, store, namespace string, data map[string]json.RawMessage) error
	Ping(ctx context.Context) error
}
