package colony

import (
	"context"
	"time"
)

func (r *Runtime) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(r.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []ControlRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case req := <-r.observerJoin:
			r.handleObserverJoin(req)
		case req := <-r.observerSub:
			r.handleObserverSubscribe(req)
		case id := <-r.observerLeave:
			r.handleObserverLeave(id)
		case req := <-r.control:
			pending = append(pending, req)
		case <-ticker.C:
			r.stepInternal(pending)
			pending = pending[:0]
		}
	}
}

func (r *Runtime) Stop() { r.stopOnce.Do(func() { close(r.stop) }) }

// StepOnce applies reqs and advances a single tick using the same ordering as Run.
// It is intended for deterministic tests and must not be mixed with a running loop.
func (r *Runtime) StepOnce(reqs ...ControlRequest) (run, tick uint64, digest string) {
	digest = r.stepInternal(reqs)
	return r.run.Load(), r.tick.Load(), digest
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
