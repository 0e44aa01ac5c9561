package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoolSubmitDropWhenBusy(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	first, err := p.Submit("blocker", func(context.Context) (any, error) {
		close(started)
		<-release
		return "first", nil
	})
	if err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}
	<-started

	// Worker busy; one queue slot left.
	if _, err := p.Submit("queued", func(context.Context) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("second submit should fill the queue: %v", err)
	}
	if _, err := p.Submit("dropped", func(context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	v, err := first.Wait()
	if err != nil || v != "first" {
		t.Fatalf("unexpected result %v, %v", v, err)
	}
}

func TestHandleReportsErrorsAndPanics(t *testing.T) {
	p := New(2, 2)
	defer p.Close()

	boom := errors.New("boom")
	h1, _ := p.Submit("fails", func(context.Context) (any, error) { return nil, boom })
	h2, _ := p.Submit("panics", func(context.Context) (any, error) { panic("bad") })

	if _, err := h1.Wait(); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if _, err := h2.Wait(); err == nil {
		t.Error("expected panic to surface as an error")
	}
	if h1.ID() == "" || h1.ID() == h2.ID() {
		t.Error("expected unique handle ids")
	}
	if h2.Name() != "panics" {
		t.Errorf("unexpected name %q", h2.Name())
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1, 1)
	h, _ := p.Submit("work", func(context.Context) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	})
	p.Close()
	p.Close()

	select {
	case <-h.Done():
	default:
		t.Fatal("Close must drain queued work")
	}
	if _, err := p.Submit("late", func(context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestTaskSeesItsHandleID(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	h, err := p.Submit("id", func(ctx context.Context) (any, error) {
		return TaskID(ctx), nil
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	v, _ := h.Wait()
	if v.(string) != h.ID() {
		t.Fatalf("task saw id %q, handle is %q", v, h.ID())
	}
	if TaskID(context.Background()) != "" {
		t.Fatal("expected empty id outside a task")
	}
}
