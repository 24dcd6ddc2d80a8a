package worker

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type keyQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher fans jobs out to the worker pool. Jobs sharing a queue key run in
// FIFO order; keys take turns through an LRU ready list.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // intake for outer jobs
	Manager  *Manager

	mu     sync.Mutex
	queues map[string]*keyQueue
	ready  *list.List // LRU of queue keys

	submitMu  sync.RWMutex
	closed    bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, manager *Manager, idleTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	pool := newJobChannelPool(minWorkers, maxWorkers, idleTimeout, manager)

	d := &Dispatcher{
		queues:   make(map[string]*keyQueue),
		ready:    list.New(),
		pool:     pool,
		JobQueue: make(chan Job, queueSize),
		Manager:  manager,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.submitMu.RLock()
	defer d.submitMu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Close stops dispatching, retires the workers and hands every job that never
// started back to the manager. It then waits for running jobs until ctx is
// done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.submitMu.Lock()
		d.closed = true
		d.submitMu.Unlock()

		close(d.stop)
		d.pool.close()
		<-d.done

	drain:
		for {
			select {
			case job := <-d.JobQueue:
				d.discard(job)
			default:
				break drain
			}
		}

		d.mu.Lock()
		var pending []Job
		for elem := d.ready.Front(); elem != nil; elem = elem.Next() {
			pending = append(pending, d.queues[elem.Value.(string)].jobs...)
		}
		d.queues = make(map[string]*keyQueue)
		d.ready.Init()
		d.mu.Unlock()

		for _, job := range pending {
			d.discard(job)
		}
	})
	return d.pool.waitBusy(ctx)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		// dispatch one job of the key at the front of the LRU
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.stop:
				return
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.stop:
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	key := job.queueKey()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[key]
	if q == nil {
		q = &keyQueue{}
		d.queues[key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.ready.PushBack(key)
}

// dispatchOne hands the first job of the front key to a worker.
func (d *Dispatcher) dispatchOne() bool {
	job, key, ok := d.popNext()
	if !ok {
		return false
	}

	workerChan, workerID := d.pool.acquire()
	if workerChan == nil {
		// pool closed while waiting
		d.discard(job)
		return true
	}
	debugLog("[dispatcher] assign %s job for %s to worker-%d", job.Type, key, workerID)
	d.pool.busy.Add(1)
	workerChan <- job
	return true
}

// popNext removes the next job in LRU order. A key with jobs left moves to
// the back of the ready list.
func (d *Dispatcher) popNext() (Job, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return Job{}, "", false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, key, true
}

func (d *Dispatcher) discard(job Job) {
	if d.Manager != nil {
		d.Manager.discard(job, ErrDispatcherClosed)
	}
}
