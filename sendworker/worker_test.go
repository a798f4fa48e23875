/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sendworker

import (
	"bytes"
	"testing"
	"time"

	"github.com/houseofmoo/netcomm-sub000/platform/shm"
	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/shmio"
	"github.com/houseofmoo/netcomm-sub000/transport"
)

// buildLocalJob wires a real shm ring for dest and returns a job carrying
// one local receiver.
func buildLocalJob(t *testing.T, payload []byte) (*router.SendJob, *shmio.ShmRecv) {
	t.Helper()
	shm.SetDir(t.TempDir())

	recv, err := shmio.OpenShmRecv(9)
	if err != nil {
		t.Fatalf("OpenShmRecv: %v", err)
	}
	snd, err := shmio.OpenShmSend(9)
	if err != nil {
		t.Fatalf("OpenShmSend: %v", err)
	}

	reg := transport.New()
	reg.UpsertShmSend(9, snd)
	rt := router.New(0, reg)

	h := &router.SendHandle{Buf: payload, BufSize: uint32(len(payload))}
	uid, err := rt.RegisterSendPublisher(100, uint32(len(payload)), h)
	if err != nil {
		t.Fatalf("RegisterSendPublisher: %v", err)
	}
	if err := rt.SendTable().AddLocalSendSubscriber(100, uint32(len(payload)), 9); err != nil {
		t.Fatalf("AddLocalSendSubscriber: %v", err)
	}

	job, err := rt.BuildSendJob(100, uid, payload, 1, 0)
	if err != nil {
		t.Fatalf("BuildSendJob: %v", err)
	}
	if len(job.LocalRecvrs) != 1 {
		t.Fatalf("expected 1 local receiver, got %d", len(job.LocalRecvrs))
	}
	return job, recv
}

func TestShmPlanDeliversToRing(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	job, recv := buildLocalJob(t, payload)
	defer recv.Close()

	done := make(chan struct{})
	w := NewWorker(ShmSendPlan{}, func(j *router.SendJob) {
		if j.Failed() {
			t.Error("job reported failure on a healthy ring")
		}
		close(done)
	})
	go w.Run()
	defer w.Stop()

	w.Enqueue(job)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never completed")
	}

	rec, err := recv.Recv(make([]byte, 64))
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !bytes.Equal(rec.Payload, payload) {
		t.Fatalf("payload mismatch: got %x, want %x", rec.Payload, payload)
	}
}

func TestPairCompletesReceiverlessJobImmediately(t *testing.T) {
	rt := router.New(0, transport.New())
	h := &router.SendHandle{Buf: make([]byte, 4)}
	uid, err := rt.RegisterSendPublisher(300, 4, h)
	if err != nil {
		t.Fatalf("RegisterSendPublisher: %v", err)
	}
	job, err := rt.BuildSendJob(300, uid, make([]byte, 4), 1, 0)
	if err != nil {
		t.Fatalf("BuildSendJob: %v", err)
	}

	completed := false
	p := NewPair(func(*router.SendJob) { completed = true })
	p.EnqueueJob(job) // workers never started: completion must be inline
	if !completed {
		t.Fatal("receiverless job did not complete inline")
	}
}

func TestEnqueueAfterStopIsRejected(t *testing.T) {
	payload := []byte{1}
	job, recv := buildLocalJob(t, payload)
	defer recv.Close()

	completed := make(chan struct{}, 1)
	w := NewWorker(ShmSendPlan{}, func(*router.SendJob) { completed <- struct{}{} })
	go w.Run()
	w.Stop()

	w.Enqueue(job)
	select {
	case <-completed:
		t.Fatal("stopped worker processed an enqueue")
	case <-time.After(100 * time.Millisecond):
	}
}
