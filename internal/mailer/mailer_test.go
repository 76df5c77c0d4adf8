package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/ignite/weekly-campaign/internal/config"
	"github.com/ignite/weekly-campaign/internal/domain"
)

func testMessage() *domain.EmailMessage {
	return &domain.EmailMessage{
		From:    "news@example.com",
		To:      "rep@example.com",
		ReplyTo: "sales@example.com",
		Subject: "Weekly touchpoint",
		HTML:    "<p>Hello</p>",
		Text:    "Hello",
		Tags: map[string]string{
			"weekly_run_id": "run-1",
			"funnel_stage":  "top",
		},
	}
}

type graphServer struct {
	*httptest.Server
	tokenCalls int32
	sendCalls  int32
	sendStatus int32

	mu   sync.Mutex
	last graphRequest
}

type graphRequest struct {
	body  []byte
	auth  string
	path  string
	reqID string
}

func (gs *graphServer) lastRequest() graphRequest {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.last
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()
	gs := &graphServer{sendStatus: http.StatusAccepted}
	mux := http.NewServeMux()
	mux.HandleFunc("/tenant-1/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&gs.tokenCalls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "https://graph.microsoft.com/.default", r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1.0/users/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&gs.sendCalls, 1)
		body, _ := io.ReadAll(r.Body)
		gs.mu.Lock()
		gs.last = graphRequest{
			body:  body,
			auth:  r.Header.Get("Authorization"),
			path:  r.URL.EscapedPath(),
			reqID: r.Header.Get("client-request-id"),
		}
		gs.mu.Unlock()
		w.WriteHeader(int(atomic.LoadInt32(&gs.sendStatus)))
	})
	gs.Server = httptest.NewServer(mux)
	t.Cleanup(gs.Close)
	return gs
}

func newGraph(t *testing.T, gs *graphServer) *GraphTransport {
	t.Helper()
	g, err := NewGraphTransport(GraphOptions{
		TenantID:        "tenant-1",
		ClientID:        "client-1",
		ClientSecret:    "secret",
		BaseURL:         gs.URL + "/v1.0",
		AuthorityURL:    gs.URL,
		SaveToSentItems: true,
		HTTPClient:      gs.Client(),
	})
	require.NoError(t, err)
	g.newClientID = func() string { return "req-123" }
	return g
}

func TestGraphTransport_Send(t *testing.T) {
	gs := newGraphServer(t)
	g := newGraph(t, gs)

	res, err := g.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "req-123", res.MessageID)
	assert.Equal(t, domain.TransportGraph, res.Transport)

	last := gs.lastRequest()
	assert.Equal(t, "/v1.0/users/news@example.com/sendMail", last.path)
	assert.Equal(t, "Bearer tok-1", last.auth)
	assert.Equal(t, "req-123", last.reqID)

	var payload graphSendMail
	require.NoError(t, json.Unmarshal(last.body, &payload))
	assert.True(t, payload.SaveToSentItems)
	assert.Equal(t, "Weekly touchpoint", payload.Message.Subject)
	assert.Equal(t, "HTML", payload.Message.Body.ContentType)
	assert.Equal(t, "<p>Hello</p>", payload.Message.Body.Content)
	require.Len(t, payload.Message.ToRecipients, 1)
	assert.Equal(t, "rep@example.com", payload.Message.ToRecipients[0].EmailAddress.Address)
	require.Len(t, payload.Message.ReplyTo, 1)
	assert.Equal(t, "sales@example.com", payload.Message.ReplyTo[0].EmailAddress.Address)
}

func TestGraphTransport_TextOnly(t *testing.T) {
	gs := newGraphServer(t)
	g := newGraph(t, gs)

	msg := testMessage()
	msg.HTML = "  "
	msg.ReplyTo = ""
	_, err := g.Send(context.Background(), msg)
	require.NoError(t, err)

	var payload graphSendMail
	require.NoError(t, json.Unmarshal(gs.lastRequest().body, &payload))
	assert.Equal(t, "Text", payload.Message.Body.ContentType)
	assert.Equal(t, "Hello", payload.Message.Body.Content)
	assert.Empty(t, payload.Message.ReplyTo)
}

func TestGraphTransport_TokenCache(t *testing.T) {
	gs := newGraphServer(t)
	g := newGraph(t, gs)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Send(ctx, testMessage())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&gs.tokenCalls))

	// Inside the refresh buffer the token is fetched again.
	g.tokens.now = func() time.Time { return time.Now().Add(time.Hour - 30*time.Second) }
	_, err := g.Send(ctx, testMessage())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gs.tokenCalls))
	assert.Equal(t, "Bearer tok-2", gs.lastRequest().auth)
}

func TestGraphTransport_Errors(t *testing.T) {
	gs := newGraphServer(t)
	g := newGraph(t, gs)
	ctx := context.Background()

	atomic.StoreInt32(&gs.sendStatus, http.StatusBadRequest)
	_, err := g.Send(ctx, testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph sendMail error 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&gs.sendCalls), "sendMail must not be retried")

	atomic.StoreInt32(&gs.sendStatus, http.StatusUnauthorized)
	_, err = g.Send(ctx, testMessage())
	require.Error(t, err)

	atomic.StoreInt32(&gs.sendStatus, http.StatusAccepted)
	_, err = g.Send(ctx, testMessage())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gs.tokenCalls), "401 drops the cached token")

	msg := testMessage()
	msg.From = ""
	_, err = g.Send(ctx, msg)
	assert.Error(t, err)
}

func TestNewGraphTransport_MissingCredentials(t *testing.T) {
	_, err := NewGraphTransport(GraphOptions{TenantID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GRAPH_CLIENT_ID")
	assert.Contains(t, err.Error(), "GRAPH_CLIENT_SECRET")
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESTransport(t *testing.T) {
	fake := &fakeSES{}
	s, err := NewSESTransport(context.Background(), SESOptions{Client: fake, ConfigurationSet: "weekly"})
	require.NoError(t, err)

	res, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "ses-1", res.MessageID)
	assert.Equal(t, domain.TransportSES, res.Transport)

	in := fake.input
	assert.Equal(t, "news@example.com", *in.FromEmailAddress)
	assert.Equal(t, []string{"rep@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"sales@example.com"}, in.ReplyToAddresses)
	assert.Equal(t, "weekly", *in.ConfigurationSetName)
	assert.Equal(t, "<p>Hello</p>", *in.Content.Simple.Body.Html.Data)
	assert.Equal(t, "Hello", *in.Content.Simple.Body.Text.Data)
	require.Len(t, in.EmailTags, 2)
	assert.Equal(t, "funnel_stage", *in.EmailTags[0].Name)
	assert.Equal(t, "weekly_run_id", *in.EmailTags[1].Name)

	fake.err = errors.New("MessageRejected")
	_, err = s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestSESTags(t *testing.T) {
	tags := sesTags(map[string]string{"contact id": "a b", "empty": ""})
	require.Len(t, tags, 1)
	assert.Equal(t, "contact_id", *tags[0].Name)
	assert.Equal(t, "a_b", *tags[0].Value)
	assert.Nil(t, sesTags(nil))
}

type fakeDialer struct {
	msgs []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.msgs = append(f.msgs, m...)
	return f.err
}

func TestSMTPTransport(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPTransport{dialer: d, host: "relay.example.com"}

	res, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, domain.TransportSMTP, res.Transport)
	assert.True(t, strings.HasSuffix(res.MessageID, "@example.com>"))
	require.Len(t, d.msgs, 1)

	m := d.msgs[0]
	assert.Equal(t, []string{"news@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"sales@example.com"}, m.GetHeader("Reply-To"))
	assert.Equal(t, []string{res.MessageID}, m.GetHeader("Message-ID"))
	assert.Equal(t, []string{"run-1"}, m.GetHeader("X-Weekly-Weekly-Run-Id"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/plain")
	assert.Contains(t, buf.String(), "text/html")

	d.err = errors.New("connection refused")
	_, err = s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewSMTPTransport(t *testing.T) {
	_, err := NewSMTPTransport(SMTPOptions{})
	assert.Error(t, err)

	s, err := NewSMTPTransport(SMTPOptions{Host: "relay.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "relay.example.com", s.messageDomain("no-at-sign"))
}

func TestLogTransport(t *testing.T) {
	lt := NewLogTransport()
	res, err := lt.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "log-"))
	assert.Equal(t, domain.TransportLog, res.Transport)
	require.Len(t, lt.Sent(), 1)
	assert.Equal(t, "rep@example.com", lt.Sent()[0].To)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lt.Send(ctx, testMessage())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, &config.Config{})
	require.NoError(t, err)
	assert.IsType(t, &LogTransport{}, s)

	cfg := &config.Config{}
	cfg.Mail.Transport = "graph"
	_, err = New(ctx, cfg)
	assert.Error(t, err)

	cfg.Graph.TenantID, cfg.Graph.ClientID, cfg.Graph.ClientSecret = "t", "c", "s"
	s, err = New(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &GraphTransport{}, s)

	cfg.Mail.Transport = "smtp"
	cfg.SMTP.Host = "relay.example.com"
	s, err = New(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &SMTPTransport{}, s)

	cfg.Mail.Transport = "fax"
	_, err = New(ctx, cfg)
	assert.Error(t, err)
}
