package promise

import (
	"context"
	"errors"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	var order []int
	for i := 0; i < 3; i++ {
		q.Enqueue(func() { order = append(order, i) })
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	n, err := q.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 3 {
		t.Errorf("ran %d jobs, want 3", n)
	}
	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d", i, v)
		}
	}
}

func TestQueue_DrainRunsNestedJobs(t *testing.T) {
	q := NewQueue()
	ran := 0
	q.Enqueue(func() {
		ran++
		q.Enqueue(func() { ran++ })
	})
	if _, err := q.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ran != 2 {
		t.Errorf("ran = %d, want 2", ran)
	}
}

func TestQueue_DrainCanceled(t *testing.T) {
	q := NewQueue()
	q.Enqueue(func() {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := q.Drain(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n != 0 || q.Len() != 1 {
		t.Errorf("n = %d, Len = %d", n, q.Len())
	}
}

func TestQueue_JobsWaitForDrain(t *testing.T) {
	q := NewQueue()
	defer q.Close(context.Background())

	ran := false
	q.Enqueue(func() { ran = true })
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	if ran {
		t.Fatal("job ran before Drain")
	}
	if _, err := q.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !ran || q.Len() != 0 {
		t.Errorf("ran = %v, Len = %d", ran, q.Len())
	}
}

func TestQueue_CloseDiscardsJobs(t *testing.T) {
	q := NewQueue()
	ran := 0
	q.Enqueue(func() { ran++ })
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	q.Enqueue(func() { ran++ })

	n, err := q.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 0 || ran != 0 {
		t.Errorf("n = %d, ran = %d, want 0", n, ran)
	}
	if err := q.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPromise_Chained(t *testing.T) {
	q := NewQueue()
	defer q.Close(context.Background())
	c := NewCapability(q)
	if c.Promise.Chained() == nil {
		t.Fatal("Chained = nil")
	}
	if q.JS() == nil {
		t.Fatal("JS = nil")
	}
}

func TestCapability_SettlesOnce(t *testing.T) {
	q := NewQueue()
	c := NewCapability(q)
	c.Resolve(1)
	c.Resolve(2)
	c.Reject(errors.New("late"))

	if c.Promise.State() != Fulfilled {
		t.Fatalf("State = %v, want fulfilled", c.Promise.State())
	}
	if c.Promise.Value() != 1 {
		t.Errorf("Value = %v, want 1", c.Promise.Value())
	}
	if c.Promise.Reason() != nil {
		t.Errorf("Reason = %v, want nil", c.Promise.Reason())
	}
}

func TestHandle_NeverSynchronous(t *testing.T) {
	q := NewQueue()
	p := Resolved(q, "v")

	var got any
	p.Handle(func(v any) { got = v }, nil)
	if got != nil {
		t.Fatal("reaction ran synchronously")
	}
	if !p.IsHandled() {
		t.Error("IsHandled = false after Handle")
	}
	q.Drain(context.Background())
	if got != "v" {
		t.Errorf("got %v, want v", got)
	}
}

func TestHandle_Rejection(t *testing.T) {
	q := NewQueue()
	boom := errors.New("boom")
	c := NewCapability(q)

	var got error
	c.Promise.Handle(nil, func(err error) { got = err })
	c.Reject(boom)
	q.Drain(context.Background())

	if got != boom {
		t.Errorf("got %v, want boom", got)
	}
	if c.Promise.State() != Rejected {
		t.Errorf("State = %v", c.Promise.State())
	}
}

func TestResolve_AdoptsPromise(t *testing.T) {
	q := NewQueue()
	inner := NewCapability(q)
	outer := NewCapability(q)
	outer.Resolve(inner.Promise)

	q.Drain(context.Background())
	if outer.Promise.State() != Pending {
		t.Fatalf("outer settled before inner: %v", outer.Promise.State())
	}

	inner.Resolve(7)
	q.Drain(context.Background())
	if outer.Promise.State() != Fulfilled || outer.Promise.Value() != 7 {
		t.Errorf("outer = %v/%v, want fulfilled/7", outer.Promise.State(), outer.Promise.Value())
	}
}

func TestResolve_SelfIsRejected(t *testing.T) {
	q := NewQueue()
	c := NewCapability(q)
	c.Resolve(c.Promise)
	if c.Promise.State() != Rejected {
		t.Errorf("State = %v, want rejected", c.Promise.State())
	}
}

func TestThen_Chaining(t *testing.T) {
	q := NewQueue()
	boom := errors.New("boom")

	tests := []struct {
		name      string
		source    *Promise
		onFul     func(any) (any, error)
		onRej     func(error) (any, error)
		wantState State
		wantValue any
		wantErr   error
	}{
		{
			name:      "map value",
			source:    Resolved(q, 2),
			onFul:     func(v any) (any, error) { return v.(int) * 10, nil },
			wantState: Fulfilled,
			wantValue: 20,
		},
		{
			name:      "handler error rejects",
			source:    Resolved(q, 2),
			onFul:     func(any) (any, error) { return nil, boom },
			wantState: Rejected,
			wantErr:   boom,
		},
		{
			name:      "rejection passes through",
			source:    RejectedWith(q, boom),
			wantState: Rejected,
			wantErr:   boom,
		},
		{
			name:      "recover",
			source:    RejectedWith(q, boom),
			onRej:     func(error) (any, error) { return "ok", nil },
			wantState: Fulfilled,
			wantValue: "ok",
		},
		{
			name:      "handler returns promise",
			source:    Resolved(q, 1),
			onFul:     func(any) (any, error) { return Resolved(q, "nested"), nil },
			wantState: Fulfilled,
			wantValue: "nested",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived := tt.source.Then(tt.onFul, tt.onRej)
			q.Drain(context.Background())
			if derived.State() != tt.wantState {
				t.Fatalf("State = %v, want %v", derived.State(), tt.wantState)
			}
			if tt.wantState == Fulfilled && derived.Value() != tt.wantValue {
				t.Errorf("Value = %v, want %v", derived.Value(), tt.wantValue)
			}
			if tt.wantState == Rejected && derived.Reason() != tt.wantErr {
				t.Errorf("Reason = %v, want %v", derived.Reason(), tt.wantErr)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	if Pending.String() != "pending" || Fulfilled.String() != "fulfilled" || Rejected.String() != "rejected" {
		t.Error("unexpected state names")
	}
	if State(9).String() != "State(9)" {
		t.Errorf("got %s", State(9).String())
	}
}
