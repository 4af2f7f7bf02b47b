package store_test

import (
	"testing"

	"github.com/truss/momentum/progress"
	"github.com/truss/momentum/progress/store"
	"github.com/truss/momentum/progress/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) progress.TxStore {
		return store.NewMemory()
	})
}
