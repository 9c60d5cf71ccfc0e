package store_test

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/corral-dev/corral/manager/internal/store"
	"github.com/corral-dev/corral/manager/internal/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.TaskStore {
		return store.NewMemory(clockwork.NewRealClock())
	})
}
