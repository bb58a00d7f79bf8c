// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcenvelope

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// WSPort is an out-of-process Port backed by a websocket connection, for
// wiring a wallet host running in a separate process (e.g. a sandboxed
// subprocess or a remote device) the way the teacher's WalletConnect
// backend relays JSON-RPC messages over a relay websocket.
type WSPort struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewWSPort wraps an established websocket connection as a Port.
func NewWSPort(conn *websocket.Conn) *WSPort {
	return &WSPort{conn: conn}
}

func (p *WSPort) Send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPortClosed
	}
	return p.conn.WriteJSON(msg)
}

// Recv blocks until a message is read or ctx is done. The underlying
// gorilla/websocket connection has no native context support for reads, so
// cancellation is implemented by racing the blocking read against ctx in a
// helper goroutine and abandoning the read's result if ctx wins.
func (p *WSPort) Recv(ctx context.Context) (Message, error) {
	type result struct {
		msg Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var msg Message
		err := p.conn.ReadJSON(&msg)
		ch <- result{msg: msg, err: err}
	}()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *WSPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}
