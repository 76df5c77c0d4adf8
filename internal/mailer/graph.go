package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/pkg/httpretry"
	"github.com/ignite/weekly-campaign/internal/pkg/logger"
)

// tokenRefreshBuffer is how early a cached token is considered expired.
const tokenRefreshBuffer = 60 * time.Second

// GraphOptions configures a GraphTransport.
type GraphOptions struct {
	TenantID        string
	ClientID        string
	ClientSecret    string
	BaseURL         string
	AuthorityURL    string
	SaveToSentItems bool
	// HTTPClient is used for sendMail and, wrapped in retries, for tokens.
	HTTPClient *http.Client
}

// GraphTransport delivers through Microsoft Graph
// POST /users/{upn}/sendMail using app-only client credentials.
type GraphTransport struct {
	baseURL     string
	saveToSent  bool
	client      *http.Client
	tokens      *tokenCache
	newClientID func() string
}

// NewGraphTransport validates credentials and builds a transport.
func NewGraphTransport(opts GraphOptions) (*GraphTransport, error) {
	var missing []string
	if opts.TenantID == "" {
		missing = append(missing, "GRAPH_TENANT_ID")
	}
	if opts.ClientID == "" {
		missing = append(missing, "GRAPH_CLIENT_ID")
	}
	if opts.ClientSecret == "" {
		missing = append(missing, "GRAPH_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("graph: missing %s", strings.Join(missing, ", "))
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if opts.AuthorityURL == "" {
		opts.AuthorityURL = "https://login.microsoftonline.com"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     strings.TrimRight(opts.AuthorityURL, "/") + "/" + url.PathEscape(opts.TenantID) + "/oauth2/v2.0/token",
		Scopes:       []string{"https://graph.microsoft.com/.default"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	return &GraphTransport{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		saveToSent: opts.SaveToSentItems,
		client:     client,
		tokens: &tokenCache{
			cfg:    cc,
			client: httpretry.NewRetryClient(client, 2).StandardClient(),
			now:    time.Now,
		},
		newClientID: func() string { return uuid.New().String() },
	}, nil
}

type graphAddress struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func address(a string) graphAddress {
	var g graphAddress
	g.EmailAddress.Address = a
	return g
}

type graphMessage struct {
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ToRecipients []graphAddress `json:"toRecipients"`
	ReplyTo      []graphAddress `json:"replyTo,omitempty"`
}

type graphSendMail struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

// Send posts one message. Graph answers 202 with no body, so the
// client-request-id we generate is returned as the message id.
func (g *GraphTransport) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if msg.From == "" {
		return nil, fmt.Errorf("graph: sender mailbox is required")
	}
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var m graphMessage
	m.Subject = msg.Subject
	if strings.TrimSpace(msg.HTML) != "" {
		m.Body.ContentType = "HTML"
		m.Body.Content = msg.HTML
	} else {
		m.Body.ContentType = "Text"
		m.Body.Content = msg.Text
	}
	m.ToRecipients = []graphAddress{address(msg.To)}
	if msg.ReplyTo != "" {
		m.ReplyTo = []graphAddress{address(msg.ReplyTo)}
	}

	body, err := json.Marshal(graphSendMail{Message: m, SaveToSentItems: g.saveToSent})
	if err != nil {
		return nil, fmt.Errorf("graph: marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", g.baseURL, url.PathEscape(msg.From))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("graph: build request: %w", err)
	}
	requestID := g.newClientID()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("client-request-id", requestID)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: sendMail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusUnauthorized {
			g.tokens.Invalidate()
		}
		return nil, fmt.Errorf("graph sendMail error %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	log.Printf("[Graph] Sent to %s (request-id: %s)", logger.RedactEmail(msg.To), requestID)
	return &domain.SendResult{
		MessageID: requestID,
		Transport: domain.TransportGraph,
		SentAt:    time.Now().UTC(),
	}, nil
}

// tokenCache holds one app-only access token and refreshes it on demand
// once it is within tokenRefreshBuffer of expiry.
type tokenCache struct {
	cfg    *clientcredentials.Config
	client *http.Client
	now    func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// Token returns a cached token or fetches a new one.
func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && c.token.AccessToken != "" && c.now().Before(c.token.Expiry.Add(-tokenRefreshBuffer)) {
		return c.token.AccessToken, nil
	}

	tok, err := c.cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, c.client))
	if err != nil {
		return "", fmt.Errorf("graph token error: %w", err)
	}
	c.token = tok
	return tok.AccessToken, nil
}

// Invalidate drops the cached token.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}
