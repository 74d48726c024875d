package mailing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/pkg/logger"
)

// Gateway sends one rendered message. Transport failures are reported in
// the result with status error; implementations never return them as Go
// errors so a caller can always record the attempt.
type Gateway interface {
	Deliver(ctx context.Context, recipient, subject, body string) domain.DeliveryResult
}

// ModeOf reports the mode g sends in. Gateways that do not say are live.
func ModeOf(g Gateway) domain.DeliveryMode {
	if m, ok := g.(interface{ Mode() domain.DeliveryMode }); ok {
		return m.Mode()
	}
	return domain.ModeLive
}

// Sender identifies the From address used by live gateways.
type Sender struct {
	Email string
	Name  string
}

func (s Sender) String() string {
	if s.Name == "" {
		return s.Email
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// SentMessage is a message captured by MockGateway.
type SentMessage struct {
	Recipient string
	Subject   string
	Body      string
	ID        string
}

// MockGateway pretends to send and records what it was given.
type MockGateway struct {
	now func() time.Time

	mu   sync.Mutex
	sent []SentMessage
}

// NewMockGateway creates a gateway that always succeeds in mock mode.
func NewMockGateway() *MockGateway {
	return &MockGateway{now: time.Now}
}

// Deliver records the message and returns a mock_<unix-nanos> id.
func (g *MockGateway) Deliver(ctx context.Context, recipient, subject, body string) domain.DeliveryResult {
	id := fmt.Sprintf("mock_%d", g.now().UnixNano())

	g.mu.Lock()
	g.sent = append(g.sent, SentMessage{Recipient: recipient, Subject: subject, Body: body, ID: id})
	g.mu.Unlock()

	logger.Info("mock email", "recipient", recipient, "subject", subject, "email_id", id)

	return domain.DeliveryResult{
		Status:  domain.OutcomeSuccess,
		ID:      id,
		Mode:    domain.ModeMock,
		Message: "Email logged (mock mode)",
	}
}

func (g *MockGateway) Mode() domain.DeliveryMode { return domain.ModeMock }

// Sent returns a copy of every message delivered so far.
func (g *MockGateway) Sent() []SentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SentMessage, len(g.sent))
	copy(out, g.sent)
	return out
}

func liveError(err error) domain.DeliveryResult {
	return domain.DeliveryResult{
		Status:  domain.OutcomeError,
		Mode:    domain.ModeLive,
		Message: err.Error(),
	}
}
