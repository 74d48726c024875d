package mailing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/postify/drip-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGateway(t *testing.T) {
	g := NewMockGateway()
	g.now = func() time.Time { return time.Unix(0, 42) }

	res := g.Deliver(context.Background(), "ada@example.com", "Hi", "<p>x</p>")

	assert.Equal(t, domain.OutcomeSuccess, res.Status)
	assert.Equal(t, domain.ModeMock, res.Mode)
	assert.Equal(t, "mock_42", res.ID)
	require.Len(t, g.Sent(), 1)
	assert.Equal(t, "ada@example.com", g.Sent()[0].Recipient)
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func TestModeOf(t *testing.T) {
	mock := NewMockGateway()
	assert.Equal(t, domain.ModeMock, ModeOf(mock))
	assert.Equal(t, domain.ModeLive, ModeOf(NewSparkPostGateway("k", "", Sender{}, 0)))
	assert.Equal(t, domain.ModeMock, ModeOf(NewThrottledGateway(mock, nil)))
}

func TestSESGateway(t *testing.T) {
	fake := &fakeSES{}
	g := NewSESGatewayWithClient(fake, Sender{Email: "hello@postify.ai", Name: "Postify AI"})

	res := g.Deliver(context.Background(), "ada@example.com", "Subject", "<p>Body</p>")

	assert.Equal(t, domain.OutcomeSuccess, res.Status)
	assert.Equal(t, domain.ModeLive, res.Mode)
	assert.Equal(t, "ses-123", res.ID)
	require.NotNil(t, fake.input)
	assert.Equal(t, "Postify AI <hello@postify.ai>", aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"ada@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "Subject", aws.ToString(fake.input.Content.Simple.Subject.Data))
}

func TestSESGatewayError(t *testing.T) {
	g := NewSESGatewayWithClient(&fakeSES{err: errors.New("throttled")}, Sender{Email: "hello@postify.ai"})

	res := g.Deliver(context.Background(), "ada@example.com", "S", "B")

	assert.Equal(t, domain.OutcomeError, res.Status)
	assert.Equal(t, domain.ModeLive, res.Mode)
	assert.Contains(t, res.Message, "throttled")
}

func TestSparkPostGateway(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transmissions", r.URL.Path)
		assert.Equal(t, "sp-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"id":"sp-987","total_accepted_recipients":1}}`))
	}))
	defer srv.Close()

	g := NewSparkPostGateway("sp-key", srv.URL+"/", Sender{Email: "hello@postify.ai"}, time.Second)
	res := g.Deliver(context.Background(), "ada@example.com", "Subject", "<p>Body</p>")

	assert.Equal(t, domain.OutcomeSuccess, res.Status)
	assert.Equal(t, "sp-987", res.ID)
	content := got["content"].(map[string]interface{})
	assert.Equal(t, "Subject", content["subject"])
}

func TestSparkPostGatewayRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"invalid recipient"}]}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	g := NewSparkPostGateway("sp-key", srv.URL, Sender{Email: "hello@postify.ai"}, time.Second)
	res := g.Deliver(context.Background(), "bad", "S", "B")

	assert.Equal(t, domain.OutcomeError, res.Status)
	assert.Contains(t, res.Message, "422")
}

func TestSparkPostGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g := NewSparkPostGateway("sp-key", srv.URL, Sender{Email: "hello@postify.ai"}, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := g.Deliver(ctx, "ada@example.com", "S", "B")
	assert.Equal(t, domain.OutcomeError, res.Status)
}

func TestSparkPostGatewayMissingKey(t *testing.T) {
	g := NewSparkPostGateway("", "", Sender{}, 0)
	res := g.Deliver(context.Background(), "ada@example.com", "S", "B")
	assert.Equal(t, domain.OutcomeError, res.Status)
}
