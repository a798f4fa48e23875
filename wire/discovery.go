/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"github.com/houseofmoo/netcomm-sub000/types"
	"github.com/tinylib/msgp/msgp"
)

// Hand-written msgp encode/decode for the discovery frame. These would
// ordinarily come from `msgp -file` codegen; written by hand here since
// the frame's owning package keeps the struct codec-free. The wire shape
// is an array, not a map, to keep every broadcast packet the same small
// size regardless of field-name overhead.

// DiscoveryMsgSize bounds one encoded broadcast; receive buffers are sized
// from it.
const DiscoveryMsgSize = 16 + 2*(9+types.MaxLabels*10)

// EncodeDiscovery renders one UDP datagram payload.
func EncodeDiscovery(m *types.BroadcastMessage) ([]byte, error) {
	o := msgp.AppendArrayHeader(nil, 3)
	o = msgp.AppendInt32(o, m.ID)
	o = appendSnapshot(o, &m.SendLabels)
	o = appendSnapshot(o, &m.RecvLabels)
	return o, nil
}

// DecodeDiscovery parses one UDP datagram payload.
func DecodeDiscovery(b []byte) (*types.BroadcastMessage, error) {
	m := &types.BroadcastMessage{}
	sz, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if sz != 3 {
		return nil, msgp.ArrayError{Wanted: 3, Got: sz}
	}
	m.ID, o, err = msgp.ReadInt32Bytes(o)
	if err != nil {
		return nil, err
	}
	o, err = readSnapshot(o, &m.SendLabels)
	if err != nil {
		return nil, err
	}
	if _, err = readSnapshot(o, &m.RecvLabels); err != nil {
		return nil, err
	}
	return m, nil
}

func appendSnapshot(b []byte, s *types.LabelsSnapshot) []byte {
	o := msgp.AppendArrayHeader(b, 2)
	o = msgp.AppendUint64(o, s.Gen)
	o = msgp.AppendArrayHeader(o, types.MaxLabels)
	for i := range s.Labels {
		o = msgp.AppendInt32(o, s.Labels[i].Label)
		o = msgp.AppendUint32(o, s.Labels[i].Size)
	}
	return o
}

func readSnapshot(b []byte, s *types.LabelsSnapshot) ([]byte, error) {
	sz, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	if sz != 2 {
		return b, msgp.ArrayError{Wanted: 2, Got: sz}
	}
	s.Gen, o, err = msgp.ReadUint64Bytes(o)
	if err != nil {
		return b, err
	}
	n, o, err := msgp.ReadArrayHeaderBytes(o)
	if err != nil {
		return b, err
	}
	if int(n) != types.MaxLabels {
		return b, msgp.ArrayError{Wanted: uint32(types.MaxLabels), Got: n}
	}
	for i := 0; i < int(n); i++ {
		s.Labels[i].Label, o, err = msgp.ReadInt32Bytes(o)
		if err != nil {
			return b, err
		}
		s.Labels[i].Size, o, err = msgp.ReadUint32Bytes(o)
		if err != nil {
			return b, err
		}
	}
	return o, nil
}
