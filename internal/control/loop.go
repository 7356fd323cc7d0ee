package control

import "sync"

// loop serializes every state transition and callback of one controller
// onto a single goroutine.
type loop struct {
	funcs chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newLoop() *loop {
	l := &loop{
		funcs: make(chan func(), 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.funcs:
			fn()
		case <-l.quit:
			return
		}
	}
}

// post queues fn. It reports false once the loop has stopped.
func (l *loop) post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.funcs <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// call runs fn on the loop and waits for it to finish. Must not be called
// from the loop goroutine.
func (l *loop) call(fn func()) bool {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

// stop terminates the loop and waits for it to exit. Queued funcs that have
// not started are dropped.
func (l *loop) stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}
