package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/devblac/counter-watch/internal/counter"
)

// DefaultTemplate renders one line per counter change.
const DefaultTemplate = "{{emoji .Reason}} Counter {{.Reason}}: {{.Change}} by {{short_addr .Caller}}"

// Notification is the data passed to sinks for one counter change.
type Notification struct {
	ID       string         `json:"id"`
	RuleID   string         `json:"rule_id"`
	SourceID string         `json:"source_id"`
	Reason   counter.Reason `json:"reason"`
	OldValue *int64         `json:"old_value,omitempty"`
	NewValue *int64         `json:"new_value,omitempty"`
	Running  int64          `json:"running_value"`
	Caller   string         `json:"caller,omitempty"`
	Change   string         `json:"change"`
	Severity string         `json:"severity"`
	TxHash   string         `json:"tx_hash"`
	LogIndex uint           `json:"log_index"`
	Height   uint64         `json:"height"`
}

// NewNotification fills the presentation fields from a normalized event.
func NewNotification(ruleID, sourceID string, ev counter.NormalizedEvent) Notification {
	return Notification{
		RuleID:   ruleID,
		SourceID: sourceID,
		Reason:   ev.Reason,
		OldValue: ev.OldValue,
		NewValue: ev.NewValue,
		Running:  ev.Running,
		Caller:   ev.Caller,
		Change:   ev.Change(),
		Severity: ev.Reason.Severity(),
		TxHash:   ev.TxHash,
		LogIndex: ev.LogIndex,
		Height:   ev.Height,
	}
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	client  *http.Client
	headers map[string]string
	// attach the structured notification next to the rendered text
	withEvent bool
}

// NewWebhookSender builds a generic HTTP sink. The body carries the rendered
// text and the notification itself.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	s, err := newHTTPSender(url, method, tmpl, headers)
	if err != nil {
		return nil, err
	}
	s.withEvent = true
	return s, nil
}

// NewSlackSender builds a Slack-compatible webhook sink.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return newHTTPSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// NewTeamsSender builds a Teams-compatible webhook sink.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	// Teams accepts simple {text: "..."} payloads.
	return newHTTPSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

func newHTTPSender(url, method, tmpl string, headers map[string]string) (*httpSender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = map[string]string{"Content-Type": "application/json"}
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: headers,
	}, nil
}

func (s *httpSender) Send(ctx context.Context, n Notification) error {
	text, err := Render(s.render, n)
	if err != nil {
		return err
	}
	body := map[string]any{"text": text}
	if s.withEvent {
		body["event"] = n
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return nil
}

// Render executes a parsed template against a notification.
func Render(t *template.Template, n Notification) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, n); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	t, err := template.New("msg").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

var funcs = template.FuncMap{
	"pretty_json": func(v any) string {
		out, _ := json.MarshalIndent(v, "", "  ")
		return string(out)
	},
	"short_addr": shortAddr,
	"emoji": func(r counter.Reason) string {
		return r.Emoji()
	},
	"arrow": arrow,
}

func shortAddr(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// arrow renders a value transition; absent sides print as "?".
func arrow(oldV, newV *int64) string {
	side := func(v *int64) string {
		if v == nil {
			return "?"
		}
		return fmt.Sprintf("%d", *v)
	}
	return side(oldV) + " → " + side(newV)
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
