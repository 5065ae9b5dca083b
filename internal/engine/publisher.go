package engine

import (
	"go.uber.org/zap"
)

// publishLoop hands each output to every subscriber in registration order and
// only then resolves the command's Future, so a caller never sees a result
// before subscribers have seen its events.
func (e *Engine) publishLoop(subs []Subscriber) {
	defer e.wg.Done()

	for d := range e.outputs {
		for _, s := range subs {
			e.deliver(s, d.out)
		}
		d.future.resolve(d.out.Result)
	}
}

func (e *Engine) deliver(s Subscriber, out *Output) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("subscriber panicked",
				zap.Int64("sequence", out.Sequence),
				zap.Any("panic", r))
		}
	}()
	s.Consume(out)
}
