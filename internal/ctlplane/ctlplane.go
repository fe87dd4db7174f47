// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctlplane is a local status socket: a net/rpc server, reached over
// a unix domain socket, that lets a second process (a CLI or monitoring
// tool) ask a running stitcher for its current outer-loop cycle and every
// aggregate's FSM state without parsing log output.
package ctlplane

import (
	"fmt"
	"net"
	"net/rpc"
	"os"
	"sort"
	"sync"

	"grimm.is/stitcher/internal/stitch/model"
)

// SocketPath is the default unix socket path a stitcher run listens on.
const SocketPath = "/tmp/stitcher-ctl.sock"

// AggregateStatus is one aggregate's reported state, safe to encode over RPC
// (model.Aggregate itself holds unexported registry bookkeeping this
// package doesn't need to expose).
type AggregateStatus struct {
	URN              string
	URL              string
	State            string
	AllocateAttempts int
}

// StatusReply is what the Status RPC method returns.
type StatusReply struct {
	SliceURN   string
	Cycle      int
	MaxCycles  int
	Aggregates []AggregateStatus
}

// Server exposes the current run's status over RPC. One Server exists per
// stitcher process; the orchestrator updates it as cycles and aggregates
// progress.
type Server struct {
	mu        sync.RWMutex
	sliceURN  string
	cycle     int
	maxCycles int
	reg       *model.Registry

	listener net.Listener
}

// NewServer returns a Server not yet listening.
func NewServer() *Server {
	return &Server{}
}

// SetCycle records the outer loop's current cycle number and bound, shown
// verbatim in the next Status call.
func (s *Server) SetCycle(sliceURN string, cycle, maxCycles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sliceURN = sliceURN
	s.cycle = cycle
	s.maxCycles = maxCycles
}

// SetRegistry records the registry the Status RPC should report on for the
// current cycle; it is read, never mutated, by Status.
func (s *Server) SetRegistry(reg *model.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = reg
}

// Status is the one RPC method the socket exposes.
func (s *Server) Status(args struct{}, reply *StatusReply) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reply.SliceURN = s.sliceURN
	reply.Cycle = s.cycle
	reply.MaxCycles = s.maxCycles
	if s.reg == nil {
		return nil
	}
	for _, a := range s.reg.Aggregates() {
		reply.Aggregates = append(reply.Aggregates, AggregateStatus{
			URN:              a.URN,
			URL:              a.URL,
			State:            a.State.String(),
			AllocateAttempts: a.AllocateAttempts,
		})
	}
	sort.Slice(reply.Aggregates, func(i, j int) bool { return reply.Aggregates[i].URN < reply.Aggregates[j].URN })
	return nil
}

// Listen registers s on its own net/rpc server and starts accepting
// connections on path (SocketPath if empty) in a background goroutine.
// Listen removes a stale socket file left by an unclean prior exit before
// binding.
func (s *Server) Listen(path string) (func() error, error) {
	if path == "" {
		path = SocketPath
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ctlplane: removing stale socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Stitcher", s); err != nil {
		return nil, fmt.Errorf("ctlplane: register: %w", err)
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ctlplane: listen on %s: %w", path, err)
	}
	s.listener = l

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go rpcServer.ServeConn(conn)
		}
	}()

	closer := func() error {
		err := l.Close()
		os.Remove(path)
		return err
	}
	return closer, nil
}

// Client queries a running stitcher's status socket.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a stitcher's status socket at path (SocketPath if empty).
func Dial(path string) (*Client, error) {
	if path == "" {
		path = SocketPath
	}
	c, err := rpc.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ctlplane: dial %s: %w", path, err)
	}
	return &Client{rpc: c}, nil
}

// Status fetches the current run status.
func (c *Client) Status() (StatusReply, error) {
	var reply StatusReply
	if err := c.rpc.Call("Stitcher.Status", struct{}{}, &reply); err != nil {
		return StatusReply{}, fmt.Errorf("ctlplane: status call: %w", err)
	}
	return reply, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}
