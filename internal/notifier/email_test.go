package notifier

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/kafkawatch/internal/alerting"
	"github.com/good-yellow-bee/kafkawatch/internal/health"
)

func TestEmailConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  EmailConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty config",
			config:  EmailConfig{},
			wantErr: true,
			errMsg:  "SMTP host is required",
		},
		{
			name: "missing port",
			config: EmailConfig{
				Host: "smtp.example.com",
			},
			wantErr: true,
			errMsg:  "SMTP port is required",
		},
		{
			name: "missing from",
			config: EmailConfig{
				Host: "smtp.example.com",
				Port: 587,
			},
			wantErr: true,
			errMsg:  "from address is required",
		},
		{
			name: "missing recipients",
			config: EmailConfig{
				Host: "smtp.example.com",
				Port: 587,
				From: "monitor@example.com",
			},
			wantErr: true,
			errMsg:  "at least one recipient is required",
		},
		{
			name: "valid config",
			config: EmailConfig{
				Host:       "smtp.example.com",
				Port:       587,
				From:       "monitor@example.com",
				Recipients: []string{"oncall@example.com"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q should contain %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuildSubject(t *testing.T) {
	tests := []struct {
		name string
		n    alerting.Notification
		want string
	}{
		{
			name: "new critical",
			n: alerting.Notification{
				Verdict: health.Verdict{
					Subject:  "broker",
					Severity: health.SeverityCritical,
					Reason:   health.ReasonTargetUnreachable,
				},
				Kind: alerting.KindNew,
			},
			want: "[CRITICAL] kafkawatch: broker TARGET_UNREACHABLE (new)",
		},
		{
			name: "reminder warning",
			n: alerting.Notification{
				Verdict: health.Verdict{
					Subject:  "connect/sink-1",
					Severity: health.SeverityWarning,
					Reason:   health.ReasonConnectorNotRunning,
				},
				Kind: alerting.KindReminder,
			},
			want: "[WARNING] kafkawatch: connect/sink-1 CONNECTOR_NOT_RUNNING (reminder)",
		},
		{
			name: "recovered",
			n: alerting.Notification{
				Verdict: health.Verdict{
					Subject:  "broker",
					Severity: health.SeverityOK,
					Reason:   health.ReasonHealthy,
				},
				Kind: alerting.KindRecovered,
			},
			want: "[RECOVERED] kafkawatch: broker is healthy again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSubject(&tt.n); got != tt.want {
				t.Errorf("subject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTemplatesRender(t *testing.T) {
	tmpl, err := LoadTemplates()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}

	ts := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	n := &alerting.Notification{
		Verdict: health.Verdict{
			Subject:  "broker",
			Severity: health.SeverityCritical,
			Reason:   health.ReasonTargetUnreachable,
			Message:  "broker is down: cannot connect to localhost:9092",
		},
		Kind:      alerting.KindNew,
		Timestamp: ts,
		FirstSeen: ts,
	}
	data := NotificationToTemplateData(n)

	plain, err := tmpl.RenderPlain(&data)
	if err != nil {
		t.Fatalf("render plain: %v", err)
	}
	for _, want := range []string{"broker", "CRITICAL", "TARGET_UNREACHABLE", "cannot connect"} {
		if !strings.Contains(plain, want) {
			t.Errorf("plain body should contain %q:\n%s", want, plain)
		}
	}

	html, err := tmpl.RenderHTML(&data)
	if err != nil {
		t.Fatalf("render html: %v", err)
	}
	for _, want := range []string{"broker", "CRITICAL", "#d32f2f"} {
		if !strings.Contains(html, want) {
			t.Errorf("html body should contain %q", want)
		}
	}
}

func TestTemplatesRenderRecoveredDuration(t *testing.T) {
	tmpl, err := LoadTemplates()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}

	ts := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	n := &alerting.Notification{
		Verdict: health.Verdict{
			Subject:  "broker",
			Severity: health.SeverityOK,
			Reason:   health.ReasonHealthy,
			Message:  "broker is running on localhost:9092",
		},
		Kind:      alerting.KindRecovered,
		Timestamp: ts,
		FirstSeen: ts.Add(-90 * time.Minute),
	}
	data := NotificationToTemplateData(n)

	plain, err := tmpl.RenderPlain(&data)
	if err != nil {
		t.Fatalf("render plain: %v", err)
	}
	if !strings.Contains(plain, "Incident lasted: 1h30m0s") {
		t.Errorf("recovered body should carry incident duration:\n%s", plain)
	}
	if !strings.Contains(plain, "No action required") {
		t.Errorf("recovered body should say no action required:\n%s", plain)
	}
}

func TestBuildMIMEMessage(t *testing.T) {
	e := &EmailNotifier{
		config: EmailConfig{
			Host:       "smtp.example.com",
			Port:       587,
			From:       "Kafka Monitor <monitor@example.com>",
			Recipients: []string{"oncall@example.com", "ops@example.com"},
		},
	}

	msg := string(e.buildMIMEMessage("[CRITICAL] kafkawatch: broker", "plain body", "<html>html body</html>"))

	for _, want := range []string{
		"From: Kafka Monitor <monitor@example.com>",
		"To: oncall@example.com, ops@example.com",
		"Subject: [CRITICAL] kafkawatch: broker",
		"Content-Type: multipart/alternative",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Type: text/html; charset=UTF-8",
		"plain body",
		"<html>html body</html>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message should contain %q", want)
		}
	}
}

func TestExtractEmail(t *testing.T) {
	e := &EmailNotifier{}

	tests := []struct {
		in   string
		want string
	}{
		{"monitor@example.com", "monitor@example.com"},
		{"Kafka Monitor <monitor@example.com>", "monitor@example.com"},
		{"<monitor@example.com>", "monitor@example.com"},
	}
	for _, tt := range tests {
		if got := e.extractEmail(tt.in); got != tt.want {
			t.Errorf("extractEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeSMTPServer speaks just enough SMTP to accept one message. It
// advertises no STARTTLS, so the client proceeds in plaintext.
type fakeSMTPServer struct {
	listener net.Listener
	mu       sync.Mutex
	messages []string
	wg       sync.WaitGroup
}

func newFakeSMTPServer(t *testing.T) *fakeSMTPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTPServer{listener: ln}
	s.wg.Add(1)
	go s.serve()
	return s
}

func (s *fakeSMTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTPServer) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	reply := func(line string) {
		w.WriteString(line + "\r\n")
		w.Flush()
	}
	reply("220 localhost fake SMTP")

	var data []string
	inData := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if inData {
			if line == "." {
				inData = false
				s.mu.Lock()
				s.messages = append(s.messages, strings.Join(data, "\n"))
				s.mu.Unlock()
				data = nil
				reply("250 OK")
				continue
			}
			data = append(data, line)
			continue
		}

		switch cmd := strings.ToUpper(line); {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250-localhost")
			reply("250 OK")
		case strings.HasPrefix(cmd, "MAIL FROM"), strings.HasPrefix(cmd, "RCPT TO"):
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			inData = true
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("500 unknown command")
		}
	}
}

func (s *fakeSMTPServer) hostPort(t *testing.T) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func (s *fakeSMTPServer) close() {
	s.listener.Close()
	s.wg.Wait()
}

func (s *fakeSMTPServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func TestEmailNotifierSend(t *testing.T) {
	server := newFakeSMTPServer(t)
	defer server.close()

	host, port := server.hostPort(t)
	email, err := NewEmailNotifier(EmailConfig{
		Host:       host,
		Port:       port,
		From:       "kafkawatch@example.com",
		Recipients: []string{"ops@example.com"},
	})
	if err != nil {
		t.Fatalf("create notifier: %v", err)
	}

	n := &alerting.Notification{
		Verdict: health.Verdict{
			Subject:  "broker",
			Severity: health.SeverityCritical,
			Reason:   health.ReasonTargetUnreachable,
			Message:  "broker is down: cannot connect to kafka1:9092",
		},
		Kind:      alerting.KindNew,
		Timestamp: time.Now(),
		FirstSeen: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := email.Send(ctx, n); err != nil {
		t.Fatalf("send: %v", err)
	}

	var messages []string
	for i := 0; i < 50; i++ {
		if messages = server.received(); len(messages) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(messages) == 0 {
		t.Fatal("no message received by fake server")
	}

	msg := messages[0]
	for _, want := range []string{
		"Subject: [CRITICAL] kafkawatch: broker TARGET_UNREACHABLE (new)",
		"To: ops@example.com",
		"broker is down: cannot connect to kafka1:9092",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestKindLabels(t *testing.T) {
	kinds := []alerting.Kind{
		alerting.KindNew, alerting.KindEscalated, alerting.KindDegraded,
		alerting.KindReminder, alerting.KindRecovered,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		label := kindLabel(k)
		if label == "" {
			t.Errorf("kind %s has empty label", k)
		}
		if seen[label] {
			t.Errorf("kind %s label %q is not unique", k, label)
		}
		seen[label] = true
	}
}
