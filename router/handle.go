// Package router implements the handle lifecycle, route-table-backed
// send-job construction, and inbound dispatch.
// It owns all handle storage: receive workers and connmgr reach handles
// only through the router under its shared lock; a SendJob carries a
// direct pointer to its publisher's SendHandle so the send workers can
// finalize it on completion.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package router

import (
	"sync"
	"unsafe"

	"github.com/houseofmoo/netcomm-sub000/types"
)

type (
	// SendHandle is the open-send capability.
	SendHandle struct {
		UID types.HandleUID
		Label types.Label
		Buf []byte // owned buffer, caller-supplied
		BufSize uint32
		Sem types.Semaphore // optional
		IOSBRing []types.SendIosb
		IOSBIndex uint32
		OffsetMode bool // true: offset-addressed send; false: slot-addressed

		mu sync.Mutex // guards only IOSB finalisation
	}

	// RecvHandle is the open-recv capability.
	RecvHandle struct {
		UID types.HandleUID
		Label types.Label
		Buf []byte // owned, NumSlots*SlotSize bytes
		AuxBuf []byte // optional, swapped in by Redirect
		SlotSize uint32
		NumSlots uint32
		BufIndex uint32 // next slot to write, monotonically advancing
		Sem types.Semaphore
		IOSBRing []types.ReceiveIosb
		IOSBIndex uint32
		SignalMode types.SignalMode
		Count uint32 // undismissed delivered-record count
		Idle bool

		mu sync.Mutex // guards delivery, IOSB finalisation, and buffer swap
	}
)

// FinalizeSend writes iosb into the handle's next IOSB ring slot under the
// handle's IOSB mutex and posts the semaphore if present. Called exactly
// once per job by the last send-worker completer.
func (h *SendHandle) FinalizeSend(iosb types.SendIosb) {
	h.mu.Lock()
	if len(h.IOSBRing) > 0 {
		h.IOSBRing[h.IOSBIndex%uint32(len(h.IOSBRing))] = iosb
		h.IOSBIndex++
	}
	h.mu.Unlock()
	if h.Sem != nil {
		h.Sem.Post()
	}
}

// Deliver copies one inbound record into the handle's next ring slot,
// writes the receive IOSB, and advances both indices — all under the
// handle's mutex, since the shm and socket receive workers may dispatch
// to the same handle concurrently (the router lock they hold is only the
// shared side). Returns whether the semaphore should be posted per the
// handle's SignalMode; an idle handle is skipped entirely.
func (h *RecvHandle) Deliver(sourceID types.NodeId, label types.Label, payload []byte, recvOffset uint32) (postSem bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Idle {
		return false
	}
	slot := h.BufIndex % h.NumSlots
	dst := h.Buf[slot*h.SlotSize : (slot+1)*h.SlotSize]
	n := copy(dst, payload)
	if len(h.IOSBRing) > 0 {
		h.IOSBRing[h.IOSBIndex%uint32(len(h.IOSBRing))] = types.ReceiveIosb{
			Status: 0,
			HeaderValid: 1,
			Action: types.ActionReceive,
			MsgSizeWords: uint32(n) / 4,
			MessageSlot: slot,
			MsgAddr: uintptr(unsafe.Pointer(&dst[0])),
			FCHeader: types.FcHeader{
				SourceID: sourceID,
				DestinationID: label,
				Parameter: recvOffset,
			},
			TimeStamp: types.NowRTOSTime(),
		}
		h.IOSBIndex++
	}
	h.BufIndex++
	h.Count++
	switch h.SignalMode {
	case types.SignalEveryMessage:
		postSem = true
	case types.SignalBufferFull:
		postSem = h.Count >= h.NumSlots
	case types.SignalOverwrite:
		postSem = h.Count == 1 // only on the empty-to-nonempty transition
	}
	return postSem
}

// SetIdle marks the handle to be skipped by (or again included in)
// inbound dispatch.
func (h *RecvHandle) SetIdle(idle bool) {
	h.mu.Lock()
	h.Idle = idle
	h.mu.Unlock()
}

// RecvCount returns records delivered since the last Reset/Dismiss
func (h *RecvHandle) RecvCount() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Count
}

// Dismiss decrements the undismissed count by n, floored at zero.
func (h *RecvHandle) Dismiss(n uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n >= h.Count {
		h.Count = 0
	} else {
		h.Count -= n
	}
}

// Reset zeroes the undismissed count.
func (h *RecvHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Count = 0
}

// Redirect atomically swaps the primary and auxiliary buffers and resets
// both ring indices.
// Called twice in succession, it returns the handle to its original
// buffer configuration.
func (h *RecvHandle) Redirect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Buf, h.AuxBuf = h.AuxBuf, h.Buf
	h.BufIndex = 0
	h.Count = 0
}
