// Package saga runs a sequence of store writes that cannot share a transaction,
// undoing the completed ones in reverse order when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCompensated reports a failed saga whose completed steps were all undone.
	ErrCompensated = errors.New("saga: partial failure, compensated")
	// ErrUncompensated reports a failed saga that left at least one step applied.
	ErrUncompensated = errors.New("saga: partial failure, compensation failed")
)

// Step is one forward action with its compensating action. Undo may be nil for
// steps that have nothing to roll back.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Failure describes why a saga stopped and what its compensation achieved.
type Failure struct {
	Step      string
	Cause     error
	Completed []string
	// UndoErrors maps step names to the error their compensation returned.
	UndoErrors map[string]error
}

func (f *Failure) Compensated() bool {
	return len(f.UndoErrors) == 0
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %q failed: %v", f.Step, f.Cause)
	if f.Compensated() {
		fmt.Fprintf(&b, "; compensated %d step(s)", len(f.Completed))
		return b.String()
	}
	names := make([]string, 0, len(f.UndoErrors))
	for _, name := range f.Completed {
		if err, ok := f.UndoErrors[name]; ok {
			names = append(names, fmt.Sprintf("%s: %v", name, err))
		}
	}
	fmt.Fprintf(&b, "; compensation failed (%s)", strings.Join(names, "; "))
	return b.String()
}

// Is lets callers match a Failure against ErrCompensated or ErrUncompensated.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrCompensated:
		return f.Compensated()
	case ErrUncompensated:
		return !f.Compensated()
	}
	return false
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Hook observes compensation outcomes, e.g. for logging.
type Hook func(ctx context.Context, step string, err error)

// Run executes steps in order. When the first step fails its error is returned
// unchanged since nothing was applied. A later failure undoes every completed
// step in reverse and returns a *Failure. Compensation runs on a context that is
// not cancelled with ctx.
func Run(ctx context.Context, steps []Step, onUndo Hook) error {
	completed := make([]Step, 0, len(steps))
	for _, step := range steps {
		err := ctx.Err()
		if err == nil {
			err = step.Do(ctx)
		}
		if err == nil {
			completed = append(completed, step)
			continue
		}
		if len(completed) == 0 {
			return err
		}
		return compensate(context.WithoutCancel(ctx), step.Name, err, completed, onUndo)
	}
	return nil
}

func compensate(ctx context.Context, failed string, cause error, completed []Step, onUndo Hook) *Failure {
	f := &Failure{Step: failed, Cause: cause}
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		f.Completed = append(f.Completed, step.Name)
		if step.Undo == nil {
			continue
		}
		err := step.Undo(ctx)
		if onUndo != nil {
			onUndo(ctx, step.Name, err)
		}
		if err != nil {
			if f.UndoErrors == nil {
				f.UndoErrors = make(map[string]error)
			}
			f.UndoErrors[step.Name] = err
		}
	}
	return f
}
