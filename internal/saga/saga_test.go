package saga

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type recorder struct {
	calls []string
}

func (r *recorder) step(name string, doErr, undoErr error) Step {
	return Step{
		Name: name,
		Do: func(context.Context) error {
			r.calls = append(r.calls, "do:"+name)
			return doErr
		},
		Undo: func(context.Context) error {
			r.calls = append(r.calls, "undo:"+name)
			return undoErr
		},
	}
}

func TestRunSucceeds(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	err := Run(context.Background(), []Step{
		rec.step("a", nil, nil),
		rec.step("b", nil, nil),
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"do:a", "do:b"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
}

func TestRunReturnsFirstStepErrorUnchanged(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	rec := &recorder{}
	err := Run(context.Background(), []Step{
		rec.step("a", boom, nil),
		rec.step("b", nil, nil),
	}, nil)
	if err != boom {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	var failure *Failure
	if errors.As(err, &failure) {
		t.Fatal("expected plain error when nothing was applied")
	}
	if len(rec.calls) != 1 {
		t.Fatalf("calls = %v, want only the first do", rec.calls)
	}
}

func TestRunCompensatesInReverse(t *testing.T) {
	t.Parallel()

	boom := errors.New("stale")
	rec := &recorder{}
	var hooked []string
	err := Run(context.Background(), []Step{
		rec.step("a", nil, nil),
		rec.step("b", nil, nil),
		rec.step("c", boom, nil),
	}, func(_ context.Context, step string, err error) {
		hooked = append(hooked, step)
	})

	if !errors.Is(err, ErrCompensated) {
		t.Fatalf("errors.Is(err, ErrCompensated) = false for %v", err)
	}
	if errors.Is(err, ErrUncompensated) {
		t.Fatal("compensated failure must not match ErrUncompensated")
	}
	if !errors.Is(err, boom) {
		t.Fatal("expected cause to be unwrapped")
	}
	want := []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	if !reflect.DeepEqual(hooked, []string{"b", "a"}) {
		t.Fatalf("hook calls = %v", hooked)
	}
}

func TestRunReportsUncompensatedFailure(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	undoErr := errors.New("connection reset")
	err := Run(context.Background(), []Step{
		rec.step("insert", nil, undoErr),
		rec.step("event", nil, nil),
		rec.step("balance", errors.New("stale"), nil),
	}, nil)

	if !errors.Is(err, ErrUncompensated) {
		t.Fatalf("errors.Is(err, ErrUncompensated) = false for %v", err)
	}
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %T", err)
	}
	if failure.Step != "balance" {
		t.Fatalf("Step = %q, want balance", failure.Step)
	}
	if failure.UndoErrors["insert"] != undoErr {
		t.Fatalf("UndoErrors = %v", failure.UndoErrors)
	}
	if !reflect.DeepEqual(failure.Completed, []string{"event", "insert"}) {
		t.Fatalf("Completed = %v", failure.Completed)
	}
}

func TestRunSkipsNilUndo(t *testing.T) {
	t.Parallel()

	ran := false
	err := Run(context.Background(), []Step{
		{Name: "read", Do: func(context.Context) error { ran = true; return nil }},
		{Name: "write", Do: func(context.Context) error { return errors.New("nope") }},
	}, nil)
	if !ran {
		t.Fatal("expected first step to run")
	}
	if !errors.Is(err, ErrCompensated) {
		t.Fatalf("err = %v, want compensated", err)
	}
}

func TestRunCompensatesAfterCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	undone := false
	err := Run(ctx, []Step{
		{
			Name: "first",
			Do:   func(context.Context) error { cancel(); return nil },
			Undo: func(ctx context.Context) error {
				undone = ctx.Err() == nil
				return nil
			},
		},
		{Name: "second", Do: func(context.Context) error { return nil }},
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled cause", err)
	}
	if !undone {
		t.Fatal("expected compensation to run on a live context")
	}
}
