package commandbuffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTasksRunInPushOrder(t *testing.T) {
	b := New(context.Background())
	defer b.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		i := i
		b.Push(func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}

	waitOrTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCloseDrainsQueuedTasksBeforeReturning(t *testing.T) {
	b := New(context.Background())

	ran := make([]bool, 10)
	var mu sync.Mutex
	for i := range ran {
		i := i
		b.Push(func(ctx context.Context) {
			mu.Lock()
			ran[i] = true
			mu.Unlock()
		})
	}

	require.NoError(t, b.Close())

	mu.Lock()
	defer mu.Unlock()
	for i, v := range ran {
		require.Truef(t, v, "task %d did not run before Close returned", i)
	}
}

func TestPushAfterCloseIsNoOp(t *testing.T) {
	b := New(context.Background())
	require.NoError(t, b.Close())

	ran := false
	b.Push(func(ctx context.Context) { ran = true })

	time.Sleep(10 * time.Millisecond)
	require.False(t, ran)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks to run")
	}
}
