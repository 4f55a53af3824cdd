package email

import (
	"net/smtp"
	"strings"
	"testing"
)

func capturingService() (*Service, *[][]byte) {
	svc := NewService(Config{
		Host: "mail.example.test", Port: "587",
		From: "noreply@example.test", FromName: "Commons",
	})
	var sent [][]byte
	svc.send = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		sent = append(sent, msg)
		return nil
	}
	return svc, &sent
}

func TestIsConfigured(t *testing.T) {
	if NewService(Config{}).IsConfigured() {
		t.Error("empty config must not count as configured")
	}
	svc, _ := capturingService()
	if !svc.IsConfigured() {
		t.Error("full config must count as configured")
	}
}

func TestSendHTMLUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendHTML([]string{"a@example.test"}, "s", "<p>x</p>", "x"); err == nil {
		t.Fatal("expected error for unconfigured service")
	}
}

func TestSendVerification(t *testing.T) {
	svc, sent := capturingService()

	if err := svc.SendVerification("ada@example.test", "Ada", "https://commons.example.test/verify?token=abc"); err != nil {
		t.Fatalf("send verification: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(*sent))
	}

	msg := string((*sent)[0])
	for _, want := range []string{
		"To: ada@example.test",
		"From: Commons <noreply@example.test>",
		"Subject: Verify your Commons account",
		"multipart/alternative",
		"https://commons.example.test/verify?token=abc",
		"Hi Ada",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendPasswordReset(t *testing.T) {
	svc, sent := capturingService()

	if err := svc.SendPasswordReset("ada@example.test", "Ada", "https://commons.example.test/reset?token=xyz"); err != nil {
		t.Fatalf("send reset: %v", err)
	}
	msg := string((*sent)[0])
	if !strings.Contains(msg, "Subject: Reset your Commons password") {
		t.Error("missing reset subject")
	}
	if !strings.Contains(msg, "token=xyz") {
		t.Error("missing reset link")
	}
}
