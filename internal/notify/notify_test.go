package notify

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Mock SMTP Server for Local Testing
// -----------------------------------------------------------------------------

type mockSMTPServer struct {
	listener net.Listener
	messages chan string
}

func newMockSMTPServer(t *testing.T) *mockSMTPServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &mockSMTPServer{listener: ln, messages: make(chan string, 4)}
	go s.listenAndServe()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *mockSMTPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *mockSMTPServer) listenAndServe() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			break
		}
		go s.handleConnection(conn)
	}
}

func (s *mockSMTPServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.Write([]byte("220 mock.smtp.server Service Ready\r\n"))

	scanner := bufio.NewScanner(conn)
	var builder strings.Builder
	inData := false

	for scanner.Scan() {
		line := scanner.Text()
		builder.WriteString(line + "\n")
		if inData {
			if line == "." {
				inData = false
				conn.Write([]byte("250 OK: queued as 12345\r\n"))
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
			conn.Write([]byte("250-mock.smtp.server Hello\r\n250 AUTH LOGIN PLAIN\r\n"))
		case strings.HasPrefix(line, "AUTH"):
			conn.Write([]byte("235 Authentication succeeded\r\n"))
		case strings.HasPrefix(line, "MAIL FROM:"), strings.HasPrefix(line, "RCPT TO:"):
			conn.Write([]byte("250 OK\r\n"))
		case strings.HasPrefix(line, "DATA"):
			inData = true
			conn.Write([]byte("354 End data with <CR><LF>.<CR><LF>\r\n"))
		case strings.HasPrefix(line, "QUIT"):
			conn.Write([]byte("221 Bye\r\n"))
			s.messages <- builder.String()
			return
		}
	}
}

func (s *mockSMTPServer) next(t *testing.T) string {
	select {
	case msg := <-s.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Mock SMTP server did not receive any messages")
		return ""
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// -----------------------------------------------------------------------------
// Tests for SMTPSender
// -----------------------------------------------------------------------------

func TestSMTPSender_Send(t *testing.T) {
	server := newMockSMTPServer(t)
	sender := NewSMTPSender(SMTPConfig{
		From:     "noreply@mindmed.test",
		Password: "password",
		Host:     "127.0.0.1",
		Port:     server.port(),
	}, testLogger())

	err := sender.Send(context.Background(), Message{
		To:       "doctor@example.com",
		Subject:  "Assinatura ativada",
		Template: TemplateSubscriptionActivated,
		Data:     Notice{Email: "doctor@example.com", PlanName: "Starter", Quota: 10},
	})
	require.NoError(t, err)

	content := server.next(t)
	assert.Contains(t, content, "AUTH PLAIN")
	assert.Contains(t, content, "To: doctor@example.com")
	assert.Contains(t, content, "Subject: Assinatura ativada")
	assert.Contains(t, content, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, content, "Starter")
	assert.Contains(t, content, "até 10 receitas")
}

func TestSMTPSender_InvalidMessage(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{From: "a@b.c", Host: "localhost", Port: 25}, testLogger())
	err := sender.Send(context.Background(), Message{Subject: "x", Template: TemplateQuotaLow})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSMTPSender_SendFailure(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{From: "a@b.c", Host: "localhost", Port: 25}, testLogger())
	var gotAddr string
	var gotAuth smtp.Auth
	sender.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth = addr, a
		return errors.New("connection refused")
	}

	err := sender.Send(context.Background(), Message{
		To:       "doctor@example.com",
		Subject:  "Receitas acabando",
		Template: TemplateQuotaLow,
		Data:     Notice{PlanName: "Starter", Remaining: 2},
	})
	assert.ErrorContains(t, err, "failed to send email")
	assert.Equal(t, "localhost:"+strconv.Itoa(25), gotAddr)
	assert.Nil(t, gotAuth)
}

func TestRender(t *testing.T) {
	t.Run("unlimited plan", func(t *testing.T) {
		body, err := Render(TemplateSubscriptionActivated, Notice{PlanName: "Pro", Unlimited: true})
		require.NoError(t, err)
		assert.Contains(t, body, "ilimitadas")
		assert.NotContains(t, body, "até")
	})

	t.Run("escapes html", func(t *testing.T) {
		body, err := Render(TemplateSubscriptionCanceled, Notice{Email: "<b>x</b>", PlanName: "Pro"})
		require.NoError(t, err)
		assert.Contains(t, body, "&lt;b&gt;x&lt;/b&gt;")
	})

	t.Run("quota low", func(t *testing.T) {
		body, err := Render(TemplateQuotaLow, Notice{PlanName: "Starter", Remaining: 1})
		require.NoError(t, err)
		assert.Contains(t, body, "<strong>1</strong>")
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := Render("missing", Notice{})
		assert.Error(t, err)
	})
}

func TestSMTPConfig_Enabled(t *testing.T) {
	assert.True(t, SMTPConfig{From: "a@b.c", Host: "smtp", Port: 587}.Enabled())
	assert.False(t, SMTPConfig{From: "a@b.c", Port: 587}.Enabled())
}

func TestNopSender(t *testing.T) {
	assert.NoError(t, NopSender{Logger: testLogger()}.Send(context.Background(), Message{}))
	assert.NoError(t, NopSender{}.Send(context.Background(), Message{}))
}
