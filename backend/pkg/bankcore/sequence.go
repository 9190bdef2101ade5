package bankcore

import (
	"context"
	"sync"

	"github.com/centralbank/bankcore/backend/pkg/store"
)

// sequenceAllocator mints monotonically increasing integer IDs for one
// collection by reading the current maximum and adding one. The mutex
// serializes callers within this process; it does not, and per the design
// note in the spec this system is built from cannot, guarantee uniqueness
// across processes sharing the same store.
type sequenceAllocator struct {
	mu sync.Mutex
	st store.Store
}

func newSequenceAllocator(st store.Store) *sequenceAllocator {
	return &sequenceAllocator{st: st}
}

type idOnly struct {
	ID int `bson:"_id"`
}

func (a *sequenceAllocator) nextID(ctx context.Context, collection string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, err := a.st.Find(ctx, collection, nil, store.FindOptions{
		SortField: "_id",
		SortDir:   store.Descending,
		Limit:     1,
	})
	if err != nil {
		return 0, wrapDBError(err)
	}
	defer cur.Close(ctx)

	if cur.Next(ctx) {
		var doc idOnly
		if err := cur.Decode(&doc); err != nil {
			return 0, wrapDBError(err)
		}
		return doc.ID + 1, nil
	}
	if err := cur.Err(); err != nil {
		return 0, wrapDBError(err)
	}
	return 1, nil
}
