package relation

import (
	"context"

	"github.com/syssam/rom"
)

// Dataset is the adapter-provided data source of a relation. Restrictions
// return new datasets; the receiver is never modified.
type Dataset interface {
	// Fetch reads the tuples of the dataset.
	Fetch(ctx context.Context) ([]rom.Tuple, error)
	// Count returns the number of tuples without reading them.
	Count(ctx context.Context) (int, error)
	// Where restricts the dataset to tuples whose attributes equal cond.
	Where(cond rom.Tuple) Dataset
	// In restricts the dataset to tuples whose attr is one of values.
	In(attr string, values []any) Dataset
}

// Joiner is implemented by datasets able to inline the tuples of another
// dataset, which is how wrapped relations are materialized. Attributes of
// other are added to each tuple with the given prefix; keys map attributes of
// the receiver to attributes of other.
type Joiner interface {
	Join(other Dataset, keys map[string]string, prefix string) Dataset
}

// Orderer is implemented by datasets supporting ordering.
type Orderer interface {
	Order(attrs ...string) Dataset
}

// Keyer is implemented by datasets able to describe their restrictions.
// Cached relations read through datasets that are not Keyers, or report
// false, without caching.
type Keyer interface {
	CacheKey() (string, bool)
}

// Gateway provides datasets by name.
type Gateway interface {
	Dataset(name string) (Dataset, error)
}
