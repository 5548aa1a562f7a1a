package httpclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueSpacingAndOrder(t *testing.T) {
	q := NewQueue(50*time.Millisecond, 0)
	defer q.Close()

	var mu sync.Mutex
	order := make([]int, 0, 3)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		if err := q.Add(context.Background(), func() error {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("Add 不应失败: %v", err)
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	if elapsed < 100*time.Millisecond {
		t.Fatalf("三个任务间应有两次 50ms 间隔, 总耗时 %v", elapsed)
	}
	if order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("任务应按提交顺序执行: %v", order)
	}
}

func TestQueueFailureDoesNotBlockNext(t *testing.T) {
	q := NewQueue(0, 0)
	defer q.Close()

	wantErr := errors.New("boom")
	if err := q.Add(context.Background(), func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("失败任务应返回自身错误, 实际 %v", err)
	}

	ran := false
	if err := q.Add(context.Background(), func() error { ran = true; return nil }); err != nil {
		t.Fatalf("后续任务不应受影响: %v", err)
	}
	if !ran {
		t.Fatal("后续任务应已执行")
	}
}

func TestQueueAddAfterClose(t *testing.T) {
	q := NewQueue(0, 0)
	q.Close()

	err := q.Add(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("关闭后 Add 应返回 ErrQueueClosed, 实际 %v", err)
	}
}

func TestQueueAddHonoursContext(t *testing.T) {
	q := NewQueue(time.Second, 0)
	defer q.Close()

	// Occupy the worker so the second Add has to wait out the inter-job delay.
	release := make(chan struct{})
	go func() {
		_ = q.Add(context.Background(), func() error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := q.Add(ctx, func() error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("上下文超时应中断等待, 实际 %v", err)
	}
}
