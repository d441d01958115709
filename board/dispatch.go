package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// remoteJob is one detached persistence call. Jobs are not joined by the
// mutation that produced them and carry no ordering guarantee relative to
// other in-flight jobs: two mutations touching the same record in quick
// succession may land in either order.
type remoteJob struct {
	op  string
	run func(ctx context.Context) error
}

// dispatcher runs remote jobs on a fixed worker pool. It is owned by a single
// Store and shut down with it.
type dispatcher struct {
	jobs    chan remoteJob
	wg      sync.WaitGroup
	timeout time.Duration
	handoff time.Duration
	log     *log.Logger
	onErr   func(op string, err error)
	once    sync.Once
}

func newDispatcher(workers, buffer int, timeout, handoff time.Duration, logger *log.Logger, onErr func(string, error)) *dispatcher {
	d := &dispatcher{
		jobs:    make(chan remoteJob, buffer),
		timeout: timeout,
		handoff: handoff,
		log:     logger,
		onErr:   onErr,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

func (d *dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := j.run(ctx)
		cancel()
		if err != nil {
			d.log.WithFields(log.Fields{"op": j.op, "worker": id, "error": err.Error()}).Error("remote write failed")
			if d.onErr != nil {
				d.onErr(j.op, err)
			}
		}
	}
}

// dispatch hands the job to a worker without blocking the caller. When the
// buffer is saturated it waits at most the handoff timeout, then gives up and
// reports the job as failed.
func (d *dispatcher) dispatch(op string, run func(ctx context.Context) error) {
	j := remoteJob{op: op, run: run}

	if ok, closed := trySendNonBlocking(d.jobs, j); ok || closed {
		return
	}

	if d.handoff > 0 {
		timer := time.NewTimer(d.handoff)
		defer timer.Stop()
		if ok, closed := sendWithTimer(d.jobs, j, timer.C); ok || closed {
			return
		}
	}

	d.log.WithField("op", op).Warn("dispatch buffer saturated; dropping remote write")
	if d.onErr != nil {
		d.onErr(op, context.DeadlineExceeded)
	}
}

// close stops accepting jobs and waits for in-flight ones to finish.
func (d *dispatcher) close() {
	d.once.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func trySendNonBlocking(ch chan remoteJob, j remoteJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- j:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan remoteJob, j remoteJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- j:
		return true, false
	case <-timer:
		return false, false
	}
}
