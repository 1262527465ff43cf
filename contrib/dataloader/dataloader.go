// Package dataloader provides generic helpers for batch loading: grouping
// loaded values by a key and ordering them by the keys that were requested.
//
// Relation graphs preload every child of a parent collection in a single
// call. The preload view restricts children to the UniqueKeys of the
// parents, the mapper matches children back with GroupByKey and
// OrderGroupsByKeys, and SQL gateways without RETURNING read written rows
// back in input order with OrderByKeys.
//
//	key := func(t rom.Tuple) string { return fmt.Sprint(t["user_id"]) }
//	groups := dataloader.OrderGroupsByKeys(userIDs, dataloader.GroupByKey(tasks, key))
//	// groups[i] holds the tasks of userIDs[i]
package dataloader

import (
	"errors"
)

// ErrNotFound is returned when a value is not found in a batch result.
var ErrNotFound = errors.New("dataloader: value not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys reorders values to match the order of requested keys.
// Missing values are represented as zero values with corresponding errors.
//
// The result slices:
//   - Have the same length as the input keys
//   - Have results in the same order as the input keys
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	// Build lookup map
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}

	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// OrderByKeysNoError reorders values to match the order of requested keys.
// Returns zero values for missing entries without errors.
// Use this when missing values are acceptable (e.g., optional parents).
func OrderByKeysNoError[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []V {
	result, _ := OrderByKeys(keys, values, keyFn)
	return result
}

// GroupByKey groups values by a key function, preserving their order.
// Useful for one-to-many relationships where multiple children share the
// same foreign key.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys reorders grouped values to match the order of requested keys.
// Returns a slice of slices where each inner slice contains the values for that key.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// UniqueKeys returns the distinct keys of values in first-seen order.
func UniqueKeys[K comparable, V any](values []V, keyFn KeyFunc[K, V]) []K {
	seen := make(map[K]struct{}, len(values))
	keys := make([]K, 0, len(values))
	for _, v := range values {
		k := keyFn(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
