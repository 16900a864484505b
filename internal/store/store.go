// Package store defines the store-neutral primitives the journal speaks: point
// reads and writes, conditional updates, partition queries, batch reads and
// all-or-nothing transactions over a single partition/sort keyed table.
package store

import (
	"context"
	"errors"
)

const (
	// AttrPK is the partition key attribute of the base table.
	AttrPK = "pk"
	// AttrSK is the sort key attribute shared by the base table and the secondary index.
	AttrSK = "sk"
	// AttrGSI1PK is the partition key attribute of IndexGSI1.
	AttrGSI1PK = "gsi1pk"

	// IndexGSI1 names the secondary index keyed by (gsi1pk, sk).
	IndexGSI1 = "gsi1"

	// MaxBatchKeys bounds the number of keys sent in a single batch read.
	MaxBatchKeys = 100
)

var (
	// ErrNotFound indicates that no record exists at the requested key.
	ErrNotFound = errors.New("store: record not found")
	// ErrConditionFailed indicates that a write guard rejected the operation.
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrUnavailable indicates a transport or infrastructure failure.
	ErrUnavailable = errors.New("store: unavailable")
)

// Key addresses a record. GSI1PK is only meaningful for continuation keys of
// secondary index queries.
type Key struct {
	PK     string `json:"pk"`
	SK     string `json:"sk"`
	GSI1PK string `json:"gsi1pk,omitempty"`
}

// ConditionKind enumerates the supported write guards and query filters.
type ConditionKind int

const (
	// ConditionEquals requires Attr to equal Value.
	ConditionEquals ConditionKind = iota
	// ConditionAbsent requires Attr to be missing or NULL.
	ConditionAbsent
	// ConditionExists requires Attr to be present.
	ConditionExists
	// ConditionBeginsWith requires the string Attr to start with Value.
	ConditionBeginsWith
)

// Condition is a single predicate over one attribute. Multiple conditions are combined with AND.
type Condition struct {
	Attr  string
	Kind  ConditionKind
	Value any
}

// Equals builds a ConditionEquals predicate.
func Equals(attr string, value any) Condition {
	return Condition{Attr: attr, Kind: ConditionEquals, Value: value}
}

// Absent builds a ConditionAbsent predicate.
func Absent(attr string) Condition {
	return Condition{Attr: attr, Kind: ConditionAbsent}
}

// Exists builds a ConditionExists predicate.
func Exists(attr string) Condition {
	return Condition{Attr: attr, Kind: ConditionExists}
}

// BeginsWith builds a ConditionBeginsWith predicate.
func BeginsWith(attr, prefix string) Condition {
	return Condition{Attr: attr, Kind: ConditionBeginsWith, Value: prefix}
}

// Put writes a whole item. Item must encode the pk and sk attributes.
type Put struct {
	Item       any
	Conditions []Condition
}

// Assignment sets Attr to Value.
type Assignment struct {
	Attr  string
	Value any
}

// Increment adds By to the numeric Attr, treating a missing attribute as zero.
type Increment struct {
	Attr string
	By   int64
}

// Update modifies individual attributes of the item at Key.
type Update struct {
	Key        Key
	Set        []Assignment
	Increment  []Increment
	Conditions []Condition
}

// WriteOp is one member of a transaction; exactly one field is set.
type WriteOp struct {
	Put    *Put
	Update *Update
}

// SortRange bounds a query's sort key inclusively.
type SortRange struct {
	Low  string
	High string
}

// Query reads a single partition of the base table or of a secondary index.
// Limit is applied before Filters, so a page may hold fewer records than Limit
// while still carrying a continuation key.
type Query struct {
	Index             string
	PartitionKey      string
	SortPrefix        string
	SortBetween       *SortRange
	Filters           []Condition
	Descending        bool
	Limit             int32
	Projection        []string
	ConsistentRead    bool
	ExclusiveStartKey *Key
}

// Record is a stored item awaiting decoding into a model.
type Record interface {
	Decode(out any) error
}

// Page is one query response.
type Page struct {
	Records          []Record
	LastEvaluatedKey *Key
}

// GetOptions tunes a point read.
type GetOptions struct {
	ConsistentRead bool
	Projection     []string
}

// Store is implemented by every backing table. Implementations are bound to a
// single table name chosen at construction.
type Store interface {
	Get(ctx context.Context, key Key, opts GetOptions) (Record, error)
	Put(ctx context.Context, put Put) error
	Update(ctx context.Context, update Update) error
	Query(ctx context.Context, query Query) (Page, error)
	// BatchGet returns the records found for keys in no particular order.
	BatchGet(ctx context.Context, keys []Key, projection []string) ([]Record, error)
	// Transact applies every operation or none of them.
	Transact(ctx context.Context, ops []WriteOp) error
}
