// Package udpmcast wraps a joined UDP multicast group socket used by
// discovery.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package udpmcast

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// Config mirrors the source's UdpMcastConfig defaults.
type Config struct {
	GroupIP string
	Port int
	BindIP string
	TTL int
	Loopback bool
}

func DefaultConfig() Config {
	return Config{
		GroupIP: "239.255.0.1",
		Port: 30001,
		BindIP: "0.0.0.0",
		TTL: 1,
		Loopback: true,
	}
}

// Socket is a joined multicast group: one connection used to send, one
// used to receive, since Go's net package models send and receive on a UDP
// multicast group as two open sockets rather than one dual-purpose handle.
type Socket struct {
	cfg Config
	group *net.UDPAddr
	send *net.UDPConn
	recv *net.UDPConn
}

// OpenAndJoin resolves the group address, opens a send socket and joins
// the group for receive.
func OpenAndJoin(cfg Config) (*Socket, error) {
	group := &net.UDPAddr{IP: net.ParseIP(cfg.GroupIP), Port: cfg.Port}

	send, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("udpmcast: dial group: %w", err)
	}
	pc := ipv4.NewPacketConn(send)
	pc.SetMulticastTTL(cfg.TTL)
	pc.SetMulticastLoopback(cfg.Loopback)

	recv, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		send.Close()
		return nil, fmt.Errorf("udpmcast: join group: %w", err)
	}

	return &Socket{cfg: cfg, group: group, send: send, recv: recv}, nil
}

// SendBroadcast writes one datagram to the group.
func (s *Socket) SendBroadcast(b []byte) error {
	_, err := s.send.Write(b)
	return err
}

// RecvBroadcast blocks for the next datagram, writing up to len(buf) bytes
// and returning the actual length.
func (s *Socket) RecvBroadcast(buf []byte) (int, error) {
	n, _, err := s.recv.ReadFromUDP(buf)
	return n, err
}

// RequestStop unblocks a pending RecvBroadcast by closing the recv socket.
func (s *Socket) RequestStop() error {
	return s.recv.Close()
}

func (s *Socket) Close() error {
	s.send.Close()
	return s.recv.Close()
}
