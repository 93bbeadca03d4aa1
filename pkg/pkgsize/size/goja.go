package size

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
)

var logger = logging.Get("size")

// ErrEvaluationTimeout is returned when evaluation is interrupted.
var ErrEvaluationTimeout = errors.New("evaluation interrupted after time limit")

// DefaultEvaluationLimit caps a single evaluation.
const DefaultEvaluationLimit = 5 * time.Second

// GojaEvaluator runs code in a fresh goja runtime per call. The runtime
// has no host bindings: no require, no filesystem, no network, no timers.
// Only `module` and `exports` objects are provided so CommonJS output can
// run to completion. Evaluation is interrupted after Limit.
//
// This still executes fetched package code in-process. It is meant for
// opt-in debug measurements only.
type GojaEvaluator struct {
	Limit time.Duration

	// Prepare converts code into a form goja can run, such as CommonJS.
	// Nil runs code unchanged.
	Prepare func(code string) (string, error)
}

var _ Evaluator = (*GojaEvaluator)(nil)

// Evaluate implements Evaluator.
func (g *GojaEvaluator) Evaluate(code string) error {
	if g.Prepare != nil {
		prepared, err := g.Prepare(code)
		if err != nil {
			return fmt.Errorf("preparing code: %w", err)
		}
		code = prepared
	}

	limit := g.Limit
	if limit <= 0 {
		limit = DefaultEvaluationLimit
	}

	rt := goja.New()
	module := rt.NewObject()
	exports := rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if err := rt.Set("module", module); err != nil {
		return err
	}
	if err := rt.Set("exports", exports); err != nil {
		return err
	}

	timer := time.AfterFunc(limit, func() {
		rt.Interrupt(ErrEvaluationTimeout)
	})
	defer timer.Stop()

	_, err := rt.RunString(code)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrEvaluationTimeout
	}
	return err
}
