// Package gmail is a thin REST client for the Gmail API, covering exactly the
// operations the router dispatches to: list recent inbox mail, search, fetch a
// single message, and send.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Kaif10/multi-agent-assistant/internal/tokenstore"
)

const defaultBaseURL = "https://gmail.googleapis.com"

// TokenSource yields a bearer token for an account. An empty account means
// "whatever the default identity is"; the source decides what that is.
type TokenSource interface {
	AccessToken(account string) (string, error)
}

// StoreSource resolves tokens from a tokenstore directory, falling back to a
// configured default account and then to the first token on disk.
type StoreSource struct {
	Store          *tokenstore.Store
	DefaultAccount string
}

func (s StoreSource) AccessToken(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		account = strings.TrimSpace(s.DefaultAccount)
	}
	if account == "" {
		first, err := s.Store.FirstGmailAccount()
		if err != nil {
			return "", err
		}
		account = first
	}
	tok, err := s.Store.GmailToken(account)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

type Client struct {
	BaseURL     string
	HTTP        *http.Client
	Tokens      TokenSource
	DownloadDir string
}

func New(tokens TokenSource) *Client {
	return &Client{
		BaseURL:     defaultBaseURL,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		Tokens:      tokens,
		DownloadDir: "downloads",
	}
}

// ListRecent returns compact metadata for the newest INBOX messages.
func (c *Client) ListRecent(ctx context.Context, account string, maxResults int) ([]MessageSummary, error) {
	params := url.Values{}
	params.Set("labelIds", "INBOX")
	params.Set("maxResults", strconv.Itoa(normalizeMax(maxResults)))
	return c.listAndHydrate(ctx, account, params)
}

// Search runs a Gmail search query and returns compact metadata for the hits.
func (c *Client) Search(ctx context.Context, account, query string, maxResults int) ([]MessageSummary, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(normalizeMax(maxResults)))
	return c.listAndHydrate(ctx, account, params)
}

func (c *Client) listAndHydrate(ctx context.Context, account string, params url.Values) ([]MessageSummary, error) {
	var listed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.get(ctx, account, "/gmail/v1/users/me/messages", params, &listed); err != nil {
		return nil, err
	}
	out := make([]MessageSummary, 0, len(listed.Messages))
	for _, m := range listed.Messages {
		summary, err := c.metadata(ctx, account, m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func (c *Client) metadata(ctx context.Context, account, id string) (MessageSummary, error) {
	params := url.Values{}
	params.Set("format", "metadata")
	for _, h := range []string{"From", "To", "Cc", "Date", "Subject", "Message-Id"} {
		params.Add("metadataHeaders", h)
	}
	var msg apiMessage
	if err := c.get(ctx, account, "/gmail/v1/users/me/messages/"+url.PathEscape(id), params, &msg); err != nil {
		return MessageSummary{}, err
	}
	return msg.summary(), nil
}

// Get fetches a full message: bodies, labels and attachment metadata. When
// downloadAttachments is set, attachment payloads are written under
// DownloadDir/<account>/<messageID>/.
func (c *Client) Get(ctx context.Context, account, id string, downloadAttachments bool) (MessageDetail, error) {
	params := url.Values{}
	params.Set("format", "full")
	var msg apiMessage
	if err := c.get(ctx, account, "/gmail/v1/users/me/messages/"+url.PathEscape(id), params, &msg); err != nil {
		return MessageDetail{}, err
	}

	detail := MessageDetail{
		MessageSummary: msg.summary(),
		LabelIDs:       msg.LabelIDs,
		Attachments:    []Attachment{},
	}
	var textParts, htmlParts []string
	for _, part := range walkParts(msg.Payload) {
		if part.Filename != "" && part.Body.AttachmentID != "" {
			att := Attachment{Filename: part.Filename, MimeType: part.MimeType}
			data, err := c.attachmentData(ctx, account, id, part.Body.AttachmentID)
			if err != nil {
				return MessageDetail{}, err
			}
			att.Size = len(data)
			if downloadAttachments {
				dest := filepath.Join(c.DownloadDir, tokenstore.Slug(account), id, safeFilename(part.Filename))
				if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					return MessageDetail{}, fmt.Errorf("create download dir: %w", err)
				}
				if err := os.WriteFile(dest, data, 0o644); err != nil {
					return MessageDetail{}, fmt.Errorf("save attachment: %w", err)
				}
				att.SavedTo = dest
			}
			detail.Attachments = append(detail.Attachments, att)
			continue
		}
		data, err := decodeBody(part.Body.Data)
		if err != nil {
			continue
		}
		switch part.MimeType {
		case "text/plain":
			textParts = append(textParts, string(data))
		case "text/html":
			htmlParts = append(htmlParts, string(data))
		}
	}
	detail.TextBody = strings.TrimSpace(strings.Join(textParts, "\n"))
	detail.HTMLBody = strings.TrimSpace(strings.Join(htmlParts, "\n"))
	if detail.TextBody == "" && detail.HTMLBody != "" {
		detail.TextBody = HTMLToText(detail.HTMLBody)
	}
	return detail, nil
}

// Send delivers an outgoing message. When msg.InReplyTo names an existing
// message, threading headers and the thread ID are carried over so the mail
// lands in the same conversation.
func (c *Client) Send(ctx context.Context, account string, msg OutgoingMessage) (SendResult, error) {
	if len(msg.To) == 0 {
		return SendResult{}, fmt.Errorf("at least one recipient is required")
	}

	var threadID string
	headers := map[string]string{}
	if strings.TrimSpace(msg.InReplyTo) != "" {
		params := url.Values{}
		params.Set("format", "metadata")
		params.Add("metadataHeaders", "Message-Id")
		params.Add("metadataHeaders", "References")
		var orig apiMessage
		if err := c.get(ctx, account, "/gmail/v1/users/me/messages/"+url.PathEscape(msg.InReplyTo), params, &orig); err != nil {
			return SendResult{}, fmt.Errorf("resolve reply target: %w", err)
		}
		origHeaders := orig.headerMap()
		if mid := origHeaders["message-id"]; mid != "" {
			headers["In-Reply-To"] = mid
			if refs := origHeaders["references"]; refs != "" {
				headers["References"] = refs + " " + mid
			} else {
				headers["References"] = mid
			}
		}
		threadID = orig.ThreadID
	}

	raw := buildRFC822(msg, headers)
	payload := map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	}
	if threadID != "" {
		payload["threadId"] = threadID
	}

	var sent SendResult
	if err := c.post(ctx, account, "/gmail/v1/users/me/messages/send", payload, &sent); err != nil {
		return SendResult{}, err
	}
	return sent, nil
}

func (c *Client) attachmentData(ctx context.Context, account, messageID, attachmentID string) ([]byte, error) {
	var att struct {
		Data string `json:"data"`
	}
	path := "/gmail/v1/users/me/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID)
	if err := c.get(ctx, account, path, nil, &att); err != nil {
		return nil, err
	}
	return decodeBody(att.Data)
}

func (c *Client) get(ctx context.Context, account, path string, params url.Values, out any) error {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, account, out)
}

func (c *Client) post(ctx context.Context, account, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, account, out)
}

func (c *Client) do(req *http.Request, account string, out any) error {
	token, err := c.Tokens.AccessToken(account)
	if err != nil {
		return fmt.Errorf("gmail credentials: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gmail read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gmail http %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gmail decode response: %w", err)
	}
	return nil
}

type apiHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type apiPart struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []apiHeader `json:"headers"`
	Body     struct {
		AttachmentID string `json:"attachmentId"`
		Size         int    `json:"size"`
		Data         string `json:"data"`
	} `json:"body"`
	Parts []apiPart `json:"parts"`
}

type apiMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	LabelIDs     []string `json:"labelIds"`
	InternalDate string   `json:"internalDate"`
	Snippet      string   `json:"snippet"`
	Payload      apiPart  `json:"payload"`
}

func (m apiMessage) headerMap() map[string]string {
	out := map[string]string{}
	for _, h := range m.Payload.Headers {
		out[strings.ToLower(h.Name)] = h.Value
	}
	return out
}

func (m apiMessage) summary() MessageSummary {
	h := m.headerMap()
	return MessageSummary{
		ID:           m.ID,
		ThreadID:     m.ThreadID,
		InternalDate: m.InternalDate,
		Snippet:      m.Snippet,
		From:         h["from"],
		To:           h["to"],
		Cc:           h["cc"],
		Date:         h["date"],
		Subject:      h["subject"],
		MessageID:    h["message-id"],
	}
}

func walkParts(p apiPart) []apiPart {
	if len(p.Parts) == 0 {
		return []apiPart{p}
	}
	var out []apiPart
	for _, child := range p.Parts {
		out = append(out, walkParts(child)...)
	}
	return out
}

func decodeBody(data string) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("empty body data")
	}
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

func buildRFC822(msg OutgoingMessage, extraHeaders map[string]string) []byte {
	var b bytes.Buffer
	writeHeader := func(name, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		}
	}
	writeHeader("To", strings.Join(msg.To, ", "))
	writeHeader("Cc", strings.Join(msg.Cc, ", "))
	writeHeader("Bcc", strings.Join(msg.Bcc, ", "))
	writeHeader("Subject", msg.Subject)
	for name, value := range extraHeaders {
		writeHeader(name, value)
	}
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/plain; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.Bytes()
}

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9._+-]`)

func safeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFilenameRe.ReplaceAllString(name, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	if name == "" {
		return "attachment.bin"
	}
	return name
}

func normalizeMax(n int) int {
	if n <= 0 {
		return 25
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
