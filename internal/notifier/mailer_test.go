package notifier

import (
	"bufio"
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeSMTP accepts one session and records the DATA section.
type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	rcpt []string
	data string
	done chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 fake ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			_ = tp.PrintfLine("250-fake")
			_ = tp.PrintfLine("250 8BITMIME")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			_ = tp.PrintfLine("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, line)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 ok")
		case cmd == "DATA":
			_ = tp.PrintfLine("354 go ahead")
			b, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = string(b)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case cmd == "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 unsupported")
		}
	}
}

func TestMailer_Send(t *testing.T) {
	srv := startFakeSMTP(t)
	m := NewMailer(SMTPConfig{
		Addr:       srv.ln.Addr().String(),
		From:       "noreply@taskly.dev",
		SubjPrefix: "[Taskly]",
		Timeout:    2 * time.Second,
	}).WithLogger(zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Send(ctx, "ann@example.com", "Verify your email", "line one\nline two"))

	<-srv.done
	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.rcpt, 1)
	assert.Contains(t, srv.rcpt[0], "ann@example.com")
	assert.Contains(t, srv.data, "Subject: [Taskly] Verify your email")
	assert.Contains(t, srv.data, "To: ann@example.com")
	assert.Contains(t, srv.data, "line one\nline two")
}

func TestMailer_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := NewMailer(SMTPConfig{Addr: addr, Timeout: 500 * time.Millisecond})
	err = m.Send(context.Background(), "a@b.c", "s", "b")
	require.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("from@x", "to@x", "Hi", "a\nb"))
	r := textproto.NewReader(bufio.NewReader(strings.NewReader(msg)))
	hdr, err := r.ReadMIMEHeader()
	require.NoError(t, err)
	assert.Equal(t, "from@x", hdr.Get("From"))
	assert.Equal(t, "to@x", hdr.Get("To"))
	assert.Equal(t, "Hi", hdr.Get("Subject"))
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\na\r\nb\r\n"))
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))
	require.NoError(t, m.Send(context.Background(), "a@b.c", "Subject", "http://link"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a@b.c", fields["to"])
	assert.Equal(t, "http://link", fields["body"])
}
