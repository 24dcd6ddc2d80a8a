package worker

// Worker runs jobs handed to it through its private channel.
type Worker struct {
	id         int
	manager    *Manager
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		id:         id,
		manager:    manager,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		for {
			if !w.pool.Release(w.jobChannel) {
				return
			}
			job := <-w.jobChannel
			switch job.Type {
			case Stop:
				debugLog("[worker-%d] stopped", w.id)
				return
			case Stream:
				w.manager.handleStream(job.StreamTask)
				w.pool.busy.Done()
			case Title:
				w.manager.handleTitle(job.TitleTask)
				w.pool.busy.Done()
			}
		}
	}()
}
