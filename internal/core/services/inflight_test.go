package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

func TestInFlight_BeginRelease(t *testing.T) {
	f := NewInFlight()

	release, err := f.Begin(1, domain.OpValidate)
	require.NoError(t, err)
	assert.True(t, f.Busy(1, domain.OpValidate))

	_, err = f.Begin(1, domain.OpValidate)
	assert.ErrorIs(t, err, domain.ErrOperationInFlight)

	release()
	release()
	assert.False(t, f.Busy(1, domain.OpValidate))

	release, err = f.Begin(1, domain.OpValidate)
	require.NoError(t, err)
	release()
}

func TestInFlight_IndependentKeys(t *testing.T) {
	f := NewInFlight()

	r1, err := f.Begin(1, domain.OpValidate)
	require.NoError(t, err)
	defer r1()

	r2, err := f.Begin(1, domain.OpCheckSpo)
	require.NoError(t, err, "different operation on the same tenant")
	defer r2()

	r3, err := f.Begin(2, domain.OpValidate)
	require.NoError(t, err, "same operation on a different tenant")
	defer r3()

	assert.Equal(t, []domain.Operation{domain.OpValidate, domain.OpCheckSpo}, f.Pending(1))
	assert.Equal(t, []domain.Operation{domain.OpValidate}, f.Pending(2))
	assert.Empty(t, f.Pending(3))
	assert.False(t, f.Busy(2, domain.OpCheckSpo))
}

func TestInFlight_ConcurrentBegin(t *testing.T) {
	f := NewInFlight()
	var won atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Begin(7, domain.OpRotateSecret); err == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
}
