/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sendworker

import (
	"sync"

	"github.com/houseofmoo/netcomm-sub000/cmn/nlog"
	"github.com/houseofmoo/netcomm-sub000/platform/sem"
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/stats"
	"github.com/houseofmoo/netcomm-sub000/types"
)

// queueCap is the send worker's soft cap.
const queueCap = 4096

// Worker is the generic send worker: one instance per transport kind,
// parameterised by Plan instead of duplicated per kind.
type Worker struct {
	plan Plan
	sem *sem.Sem
	mu sync.Mutex
	queue []*router.SendJob
	stop chan struct{}
	stopped bool
	onComplete func(*router.SendJob) // calls Router.CompleteJob on last completer
	stats *stats.Stats // optional
}

func NewWorker(plan Plan, onComplete func(*router.SendJob)) *Worker {
	return &Worker{
		plan: plan,
		sem: sem.NewLocal(),
		stop: make(chan struct{}),
		onComplete: onComplete,
	}
}

// SetStats attaches a metrics sink; nil-safe if never called.
func (w *Worker) SetStats(s *stats.Stats) { w.stats = s }

// Enqueue hands job to this worker. Enqueue after
// Stop is rejected silently. On soft-cap overflow the job is dropped: both
// of the job's failure counts are bumped and the job is completed anyway so
// its IOSB still finalizes with a failure status.
func (w *Worker) Enqueue(job *router.SendJob) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if len(w.queue) >= queueCap {
		w.mu.Unlock()
		nlog.Warningf("sendworker(%s): queue full, dropping job for label %d", w.plan.Kind(), job.Label)
		if w.stats != nil {
			w.stats.QueueDrops.WithLabelValues(w.plan.Kind()).Inc()
		}
		job.LocalFailCount().Add(1)
		job.RemoteFailCount().Add(1)
		w.finish(job)
		return
	}
	w.queue = append(w.queue, job)
	w.mu.Unlock()
	w.sem.Post()
}

func (w *Worker) pop() (*router.SendJob, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return nil, false
	}
	j := w.queue[0]
	w.queue = w.queue[1:]
	return j, true
}

// Run is the dispatch loop; it must run in its own goroutine for the
// lifetime of the worker.
func (w *Worker) Run() {
	for {
		w.sem.Wait()

		select {
		case <-w.stop:
			w.drain()
			return
		default:
		}

		for {
			job, ok := w.pop()
			if !ok {
				break
			}
			w.dispatch(job)
		}
	}
}

func (w *Worker) dispatch(job *router.SendJob) {
	for _, recv := range w.plan.Receivers(job) {
		if !w.plan.SendOne(recv, job) {
			w.plan.FailCount(job).Add(1)
			if w.stats != nil {
				w.stats.SendFailures.WithLabelValues(w.plan.Kind()).Inc()
			}
		}
	}
	w.finish(job)
}

func (w *Worker) finish(job *router.SendJob) {
	if job.CompleteOne() && w.onComplete != nil {
		w.onComplete(job)
	}
}

// drain empties the queue without sending, still completing every job so
// pending IOSBs finalize.
func (w *Worker) drain() {
	for {
		job, ok := w.pop()
		if !ok {
			return
		}
		w.plan.FailCount(job).Add(1)
		w.finish(job)
	}
}

// Stop requests the worker to stop after draining its current queue
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()
	close(w.stop)
	w.sem.Post()
}

func hdrFor(j *router.SendJob) types.LabelHeader {
	h := types.LabelHeader{
		Magic: types.MagicNum,
		Version: types.Version,
		SourceID: j.SourceID,
		Label: j.Label,
		DataSize: uint32(len(j.Payload)),
		RecvOffset: j.RecvOffset,
	}
	types.SetFlag(&h.Flags, types.FlagData)
	return h
}
