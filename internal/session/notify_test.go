package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/isdelr/vs-recorder/internal/credential"
)

func TestNotifySkipsOvertakenChanges(t *testing.T) {
	s := New(nil, credential.NewMemoryStore())
	defer s.Teardown()

	var got []ChangeReason
	s.Subscribe(func(snap Snapshot) { got = append(got, snap.Reason) })

	s.notify(2, Snapshot{Generation: 1, Reason: ReasonLogout})
	s.notify(1, Snapshot{Generation: 0, Reason: ReasonLogin})
	s.notify(3, Snapshot{Generation: 1, Reason: ReasonBootstrap})

	assert.Equal(t, []ChangeReason{ReasonLogout, ReasonBootstrap}, got)
}

func TestNotifyDeliversInChangeOrder(t *testing.T) {
	s := New(nil, credential.NewMemoryStore())
	defer s.Teardown()

	var last uint64
	var outOfOrder int
	s.Subscribe(func(snap Snapshot) {
		if snap.Generation < last {
			outOfOrder++
		}
		last = snap.Generation
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.mu.Lock()
			s.generation++
			seq, snap := s.changedLocked()
			s.mu.Unlock()
			s.notify(seq, snap)
		}()
	}
	wg.Wait()

	assert.Zero(t, outOfOrder)
	assert.Equal(t, uint64(50), last)
}
