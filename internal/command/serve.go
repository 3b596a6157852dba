package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// Framing configures how a byte stream is cut into commands.
type Framing struct {
	Terminator   byte
	MaxLineBytes int
}

// DefaultFraming ends commands with '%' and keeps at most 80 bytes of each.
func DefaultFraming() Framing {
	return Framing{Terminator: DefaultTerminator, MaxLineBytes: DefaultMaxLineBytes}
}

// Serve reads commands from r and writes their output to w until r is
// exhausted or ctx is done. A command still being assembled at EOF is run.
// ctx is checked between bytes, so a blocked read is not interrupted.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer, f Framing) error {
	asm := NewLineAssembler(f.Terminator, f.MaxLineBytes)
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line, _ := asm.Feed(f.Terminator); line != "" {
					d.Dispatch(ctx, w, line)
				}
				return nil
			}
			return fmt.Errorf("command: reading input: %w", err)
		}
		if line, ok := asm.Feed(b); ok {
			if asm.Truncated() {
				cmdLog.Warnf("Command truncated to %d bytes", f.MaxLineBytes)
			}
			d.Dispatch(ctx, w, line)
		}
	}
}

// ListenAndServe accepts TCP connections on addr and serves commands on each
// until ctx is done.
func (d *Dispatcher) ListenAndServe(ctx context.Context, addr string, f Framing) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("command: listen on %s: %w", addr, err)
	}
	return d.ServeListener(ctx, ln, f)
}

// ServeListener serves commands on connections accepted from ln. It closes
// ln when ctx is done and waits for open connections to finish.
func (d *Dispatcher) ServeListener(ctx context.Context, ln net.Listener, f Framing) error {
	cmdLog.Infof("Listening for commands on %s", ln.Addr())

	var wg sync.WaitGroup
	var mu sync.Mutex
	conns := make(map[net.Conn]struct{})

	go func() {
		<-ctx.Done()
		ln.Close()
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
	}()

	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("command: accept: %w", err)
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()
		if ctx.Err() != nil {
			conn.Close()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
				conn.Close()
			}()
			cmdLog.Debugf("Command connection from %s", conn.RemoteAddr())
			if err := d.Serve(ctx, conn, conn, f); err != nil && ctx.Err() == nil {
				cmdLog.Warnf("Command connection %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
