/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package manager

import (
	"errors"

	"github.com/houseofmoo/netcomm-sub000/router"
	"github.com/houseofmoo/netcomm-sub000/types"
)

var ErrNotReady = errors.New("manager: not ready")

// SendHandle is the public capability returned by OpenSend; it wraps the
// router's internal handle so callers never see a *router.SendHandle
// directly.
type SendHandle struct {
	m *Manager
	h *router.SendHandle
}

// OpenSend implements "open_send(label, buf, buf_size, mode, sem,
// iosb_ring, iosb_count) -> send_handle". buf is the caller-owned wire
// buffer; iosbRing is the caller-owned completion ring it polls (nil
// disables completion tracking). The route's label_size is len(buf).
func (m *Manager) OpenSend(label types.Label, buf []byte, sem types.Semaphore, offsetMode bool, iosbRing []types.SendIosb) (*SendHandle, error) {
	if !m.IsReady() {
		return nil, ErrNotReady
	}
	h := &router.SendHandle{
		Buf: buf,
		BufSize: uint32(len(buf)),
		Sem: sem,
		OffsetMode: offsetMode,
		IOSBRing: iosbRing,
	}
	if _, err := m.router.RegisterSendPublisher(label, uint32(len(buf)), h); err != nil {
		return nil, err
	}
	return &SendHandle{m: m, h: h}, nil
}

// SendLabel implements "send_label(handle, alt_buf_or_null, payload_size,
// send_offset, recv_offset)": it builds a job for the record and enqueues
// it on the send workers. The payload is taken from altBuf when non-nil,
// from the region starting at sendOffset when the handle is in offset
// mode, and from the handle's whole buffer otherwise. recvOffset travels
// uninterpreted to every remote (TCP) receiver's IOSB; receivers reached
// through shared memory see 0 there. The caller owns the payload
// memory until the handle's completion IOSB reports the job done.
func (sh *SendHandle) SendLabel(altBuf []byte, payloadSize, sendOffset, recvOffset uint32) error {
	var payload []byte
	switch {
	case altBuf != nil:
		if uint64(payloadSize) > uint64(len(altBuf)) {
			return router.ErrSizeMismatch
		}
		payload = altBuf[:payloadSize]
	case sh.h.OffsetMode:
		if uint64(sendOffset)+uint64(payloadSize) > uint64(len(sh.h.Buf)) {
			return router.ErrSizeMismatch
		}
		payload = sh.h.Buf[sendOffset : sendOffset+payloadSize]
	default:
		payload = sh.h.Buf
	}
	seq := sh.m.nextSeq()
	job, err := sh.m.router.BuildSendJob(sh.h.Label, sh.h.UID, payload, seq, recvOffset)
	if err != nil {
		return err
	}
	sh.m.send.EnqueueJob(job)
	return nil
}

// Close implements "close_send(handle)".
func (sh *SendHandle) Close() error { return sh.m.router.CloseSend(sh.h.UID) }

// RecvHandle is the public capability returned by OpenRecv.
type RecvHandle struct {
	m *Manager
	h *router.RecvHandle
}

// OpenRecv implements "open_recv(label, buf, slot_size, num_slots,
// aux_buf, sem, iosb_ring, iosb_count, signal_mode) -> recv_handle".
// buf must hold numSlots*slotSize bytes; auxBuf may be nil if the caller
// never intends to call Redirect; iosbRing is the caller-owned status
// ring it polls.
func (m *Manager) OpenRecv(label types.Label, buf, auxBuf []byte, slotSize, numSlots uint32, sem types.Semaphore, iosbRing []types.ReceiveIosb, signalMode types.SignalMode) (*RecvHandle, error) {
	if !m.IsReady() {
		return nil, ErrNotReady
	}
	if slotSize == 0 || numSlots == 0 || uint64(len(buf)) < uint64(slotSize)*uint64(numSlots) {
		return nil, router.ErrSizeMismatch
	}
	h := &router.RecvHandle{
		Buf: buf,
		AuxBuf: auxBuf,
		SlotSize: slotSize,
		NumSlots: numSlots,
		Sem: sem,
		IOSBRing: iosbRing,
		SignalMode: signalMode,
	}
	if _, err := m.router.RegisterRecvSubscriber(label, slotSize, h); err != nil {
		return nil, err
	}
	return &RecvHandle{m: m, h: h}, nil
}

// RecvCount implements "recv_count(handle)".
func (rh *RecvHandle) RecvCount() uint32 { return rh.h.RecvCount() }

// Dismiss implements "recv_dismiss(handle, n)".
func (rh *RecvHandle) Dismiss(n uint32) { rh.h.Dismiss(n) }

// Reset implements "recv_reset(handle)".
func (rh *RecvHandle) Reset() { rh.h.Reset() }

// Redirect implements "recv_redirect(handle)": swaps the primary and
// auxiliary buffers; applied twice it returns the handle to its original
// configuration.
func (rh *RecvHandle) Redirect() { rh.h.Redirect() }

// SetIdle excludes the handle from (or re-includes it in) inbound
// dispatch without closing it.
func (rh *RecvHandle) SetIdle(idle bool) { rh.h.SetIdle(idle) }

// Close implements "close_recv(handle)".
func (rh *RecvHandle) Close() error { return rh.m.router.CloseRecv(rh.h.UID) }
