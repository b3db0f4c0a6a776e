package notify

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

// fakeRelay is a minimal SMTP server that records the conversation.
type fakeRelay struct {
	ln net.Listener

	mu       sync.Mutex
	commands []string
	data     string
}

func startRelay(t *testing.T) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &fakeRelay{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go r.serve()
	return r
}

func (r *fakeRelay) serve() {
	conn, err := r.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	reply := func(s string) {
		rw.WriteString(s + "\r\n")
		rw.Flush()
	}

	reply("220 localhost ESMTP")
	for {
		line, err := rw.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		r.mu.Lock()
		r.commands = append(r.commands, line)
		r.mu.Unlock()

		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			reply("250-localhost")
			reply("250 AUTH PLAIN")
		case "AUTH":
			reply("235 2.7.0 Authentication successful")
		case "MAIL", "RCPT", "RSET", "NOOP":
			reply("250 OK")
		case "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				l, err := rw.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			r.mu.Lock()
			r.data = b.String()
			r.mu.Unlock()
			reply("250 OK queued")
		case "QUIT":
			reply("221 Bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestSMTPNotifier_Sends(t *testing.T) {
	relay := startRelay(t)

	n := NewSMTP(SMTPConfig{
		Host:     "localhost",
		Username: "robot@example.com",
		Password: "pw",
		Timeout:  5 * time.Second,
	})
	var dialed string
	// plain connection to the local relay in place of implicit TLS
	n.options = []mail.Option{
		mail.WithTLSPolicy(mail.NoTLS),
		mail.WithDialContextFunc(func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialed = addr
			return (&net.Dialer{}).DialContext(ctx, network, relay.ln.Addr().String())
		}),
	}

	err := n.Notify(context.Background(), Message{
		To:      "owner@example.com, second@example.com",
		Subject: "MetrikaLogsAPI. Выгрузка данных завершена.",
		Body:    "line one\nline two",
	})
	require.NoError(t, err)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.Equal(t, "localhost:465", dialed)
	assert.Contains(t, relay.commands, "MAIL FROM:<robot@example.com>")
	assert.Contains(t, relay.commands, "RCPT TO:<owner@example.com>")
	assert.Contains(t, relay.commands, "RCPT TO:<second@example.com>")
	assert.True(t, hasPrefix(relay.commands, "AUTH PLAIN"), "commands: %v", relay.commands)

	data := strings.ToLower(relay.data)
	assert.Contains(t, data, "subject: =?utf-8?")
	assert.Contains(t, data, "content-type: text/plain; charset=utf-8")
	assert.Contains(t, relay.data, "owner@example.com")
	assert.Contains(t, relay.data, "second@example.com")
	assert.Contains(t, relay.data, "line one")
	assert.Contains(t, relay.data, "line two")
}

func hasPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func TestSMTPNotifier_ClientOptionsFollowPort(t *testing.T) {
	implicit := NewSMTP(SMTPConfig{Host: "smtp.example.com", Username: "robot@example.com"})
	c, err := mail.NewClient("smtp.example.com", implicit.clientOptions()...)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:465", c.ServerAddr())

	starttls := NewSMTP(SMTPConfig{Host: "smtp.example.com", Port: 587})
	c, err = mail.NewClient("smtp.example.com", starttls.clientOptions()...)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", c.ServerAddr())
}

func TestSMTPNotifier_InvalidAddresses(t *testing.T) {
	n := NewSMTP(SMTPConfig{Host: "localhost", From: "not an address"})
	assert.Error(t, n.Notify(context.Background(), Message{To: "owner@example.com", Subject: "x"}))

	n = NewSMTP(SMTPConfig{Host: "localhost", From: "robot@example.com"})
	assert.Error(t, n.Notify(context.Background(), Message{To: "owner@", Subject: "x"}))
}

func TestSMTPNotifier_NoRecipient(t *testing.T) {
	n := NewSMTP(SMTPConfig{Host: "localhost"})
	assert.Error(t, n.Notify(context.Background(), Message{Subject: "x"}))
}

func TestNew_FallsBackToLog(t *testing.T) {
	_, isLog := New(SMTPConfig{}).(LogNotifier)
	assert.True(t, isLog)

	_, isSMTP := New(SMTPConfig{Host: "smtp.example.com"}).(*SMTPNotifier)
	assert.True(t, isSMTP)

	assert.NoError(t, LogNotifier{}.Notify(context.Background(), Message{To: "a@b", Subject: "s", Body: "b"}))
}

func TestRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@x", "b@x"}, recipients(" a@x ,, b@x"))
	assert.Nil(t, recipients(""))
}
