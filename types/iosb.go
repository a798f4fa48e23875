/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package types

import "encoding/binary"

// RoilAction distinguishes a send IOSB from a receive IOSB.
type RoilAction int32

const (
	ActionSend RoilAction = iota
	ActionReceive
)

// FcHeader mirrors the fibre-channel-style header embedded in both IOSB
// kinds. The original packs these into six 32-bit bitfield words; here each
// field gets its own word since Go has no bitfields and nothing downstream
// needs bit-for-bit layout with the original RTOS structure, only the same
// named fields the application polls.
type FcHeader struct {
	SourceID NodeId
	DestinationID Label
	Parameter uint32
}

// SendIosb is the 48-byte send-completion status block. Status is 0 on
// full success, -1 if any receiver failed to acknowledge.
type SendIosb struct {
	Status int32
	HeaderValid uint32
	Action RoilAction
	MsgAddr uintptr
	MsgSize uint32
	FCHeader FcHeader
	TimeStamp RTOSTime
}

// ReceiveIosb is the 48-byte receive-completion status block.
type ReceiveIosb struct {
	Status int32
	HeaderValid uint32
	Action RoilAction
	MsgSizeWords uint32 // bytes / 4, per size_in_words vs bytes note — converted only at the C boundary
	MessageSlot uint32
	MsgAddr uintptr
	FCHeader FcHeader
	TimeStamp RTOSTime
}

const IosbSize = 48

func NewSendIosb() *SendIosb { return &SendIosb{Action: ActionSend} }
func NewReceiveIosb() *ReceiveIosb { return &ReceiveIosb{Action: ActionReceive} }

// Bytes renders a canonical 48-byte little-endian encoding, used only for
// cross-process introspection dumps (the API surface itself hands out the
// Go struct directly).
func (s *SendIosb) Bytes() []byte {
	b := make([]byte, IosbSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(s.Status))
	binary.LittleEndian.PutUint32(b[4:8], s.HeaderValid)
	binary.LittleEndian.PutUint32(b[8:12], uint32(s.Action))
	binary.LittleEndian.PutUint64(b[12:20], uint64(s.MsgAddr))
	binary.LittleEndian.PutUint32(b[20:24], s.MsgSize)
	binary.LittleEndian.PutUint32(b[24:28], uint32(s.FCHeader.SourceID))
	binary.LittleEndian.PutUint32(b[28:32], uint32(s.FCHeader.DestinationID))
	binary.LittleEndian.PutUint32(b[32:36], s.FCHeader.Parameter)
	binary.LittleEndian.PutUint32(b[36:40], s.TimeStamp.Sec)
	binary.LittleEndian.PutUint32(b[40:44], s.TimeStamp.Nsec)
	return b
}

func (r *ReceiveIosb) Bytes() []byte {
	b := make([]byte, IosbSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(r.Status))
	binary.LittleEndian.PutUint32(b[4:8], r.HeaderValid)
	binary.LittleEndian.PutUint32(b[8:12], uint32(r.Action))
	binary.LittleEndian.PutUint32(b[12:16], r.MsgSizeWords)
	binary.LittleEndian.PutUint32(b[16:20], r.MessageSlot)
	binary.LittleEndian.PutUint64(b[20:28], uint64(r.MsgAddr))
	binary.LittleEndian.PutUint32(b[28:32], uint32(r.FCHeader.SourceID))
	binary.LittleEndian.PutUint32(b[32:36], uint32(r.FCHeader.DestinationID))
	binary.LittleEndian.PutUint32(b[36:40], r.FCHeader.Parameter)
	binary.LittleEndian.PutUint32(b[40:44], r.TimeStamp.Sec)
	binary.LittleEndian.PutUint32(b[44:48], r.TimeStamp.Nsec)
	return b
}
