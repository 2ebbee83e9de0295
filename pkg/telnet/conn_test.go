package telnet

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReadWindow = 300 * time.Millisecond

// scriptedServer accepts one connection and hands it to the script.
type scriptedServer struct {
	ln   net.Listener
	host string
	port int
	done chan struct{}
}

func newScriptedServer(t *testing.T, script func(conn net.Conn)) *scriptedServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().(*net.TCPAddr)
	s := &scriptedServer{ln: ln, host: "127.0.0.1", port: addr.Port, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}()

	t.Cleanup(func() {
		ln.Close()
		<-s.done
	})
	return s
}

func dialTest(t *testing.T, s *scriptedServer) *Conn {
	t.Helper()

	conn, err := Dial(context.Background(), s.host, s.port, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDial_Refused(t *testing.T) {
	// Grab a free port, then close the listener so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	conn, err := Dial(context.Background(), "127.0.0.1", port, time.Second)
	require.Error(t, err)
	assert.Nil(t, conn)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "127.0.0.1", connErr.Host)
	assert.Equal(t, port, connErr.Port)
}

func TestConn_ReadAvailable(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {
		conn.Write([]byte("hello"))
		time.Sleep(50 * time.Millisecond)
		conn.Write([]byte(" world"))
		time.Sleep(500 * time.Millisecond)
	})
	conn := dialTest(t, s)

	data, err := conn.ReadAvailable(testReadWindow)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestConn_ReadAvailable_NoData(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {
		time.Sleep(time.Second)
	})
	conn := dialTest(t, s)

	data, err := conn.ReadAvailable(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestConn_ReadUntil_Found(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {
		conn.Write([]byte("Ubuntu 22.04\r\nlogin: "))
		time.Sleep(500 * time.Millisecond)
	})
	conn := dialTest(t, s)

	start := time.Now()
	data, err := conn.ReadUntil([]byte("login: "), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Ubuntu 22.04\r\nlogin: ", string(data))
	assert.Less(t, time.Since(start), time.Second, "match should return before the window elapses")
}

func TestConn_ReadUntil_Miss(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {
		conn.Write([]byte("no prompt here"))
		time.Sleep(time.Second)
	})
	conn := dialTest(t, s)

	data, err := conn.ReadUntil([]byte("$ "), 100*time.Millisecond)
	require.ErrorIs(t, err, ErrPatternNotFound)
	assert.Equal(t, "no prompt here", string(data))
}

func TestConn_ReadUntil_KeepsBytesPastMatch(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {
		conn.Write([]byte("abc> leftover"))
		time.Sleep(time.Second)
	})
	conn := dialTest(t, s)

	data, err := conn.ReadUntil([]byte("> "), testReadWindow)
	require.NoError(t, err)
	assert.Equal(t, "abc> ", string(data))

	rest, err := conn.ReadAvailable(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "leftover", string(rest))
}

func TestConn_FiltersNegotiationAndRefuses(t *testing.T) {
	got := make(chan []byte, 1)
	s := newScriptedServer(t, func(conn net.Conn) {
		conn.Write([]byte{cmdIAC, cmdWill, 1, 'o', 'k', cmdIAC, cmdDo, 3})

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 16)
		n, _ := io.ReadAtLeast(conn, buf, 6)
		got <- buf[:n]
	})
	conn := dialTest(t, s)

	data, err := conn.ReadAvailable(testReadWindow)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	select {
	case replies := <-got:
		assert.Equal(t, []byte{cmdIAC, cmdDont, 1, cmdIAC, cmdWont, 3}, replies)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received option refusals")
	}
}

func TestConn_Drain(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {
		conn.Write([]byte("stale output\r\n"))
		time.Sleep(time.Second)
	})
	conn := dialTest(t, s)

	// Let the residue land in the kernel buffer.
	time.Sleep(50 * time.Millisecond)

	n := conn.Drain()
	assert.Equal(t, len("stale output\r\n"), n)

	data, err := conn.ReadAvailable(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestConn_Write(t *testing.T) {
	got := make(chan string, 1)
	s := newScriptedServer(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		got <- string(buf[:n])
	})
	conn := dialTest(t, s)

	require.NoError(t, conn.Write([]byte("uptime\r\n")))

	select {
	case cmd := <-got:
		assert.Equal(t, "uptime\r\n", cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the command")
	}
}

func TestConn_CloseIdempotent(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {})
	conn := dialTest(t, s)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	err := conn.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = conn.ReadAvailable(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConn_RemoteClosed(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {
		conn.Close()
	})
	conn := dialTest(t, s)

	_, err := conn.ReadAvailable(testReadWindow)
	require.Error(t, err)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.True(t, IsTransportDead(err))
}

func TestIsTransportDead(t *testing.T) {
	assert.True(t, IsTransportDead(ErrClosed))
	assert.True(t, IsTransportDead(&TransportError{Op: "read", Addr: "h:1", Err: io.EOF}))
	assert.False(t, IsTransportDead(nil))
	assert.False(t, IsTransportDead(ErrPatternNotFound))
	assert.False(t, IsTransportDead(errors.New("unrelated")))
}

func TestConn_RemoteAddr(t *testing.T) {
	s := newScriptedServer(t, func(conn net.Conn) {})
	conn := dialTest(t, s)

	assert.Equal(t, net.JoinHostPort(s.host, strconv.Itoa(s.port)), conn.RemoteAddr())
}
