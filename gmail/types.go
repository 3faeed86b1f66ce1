package gmail

import (
	"strconv"
	"time"
)

// MessageSummary is the compact metadata shape used for listing, searching
// and summarization. Field names mirror the Gmail API metadata response.
type MessageSummary struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	InternalDate string `json:"internalDate"`
	Snippet      string `json:"snippet"`
	From         string `json:"from"`
	To           string `json:"to"`
	Cc           string `json:"cc"`
	Date         string `json:"date"`
	Subject      string `json:"subject"`
	MessageID    string `json:"message-id"`
}

// InternalTime parses the Gmail internalDate (epoch milliseconds as a string).
// The zero time and false are returned when the field is absent or malformed.
func (m MessageSummary) InternalTime() (time.Time, bool) {
	ms, err := strconv.ParseInt(m.InternalDate, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
	SavedTo  string `json:"saved_to,omitempty"`
}

type MessageDetail struct {
	MessageSummary
	LabelIDs    []string     `json:"labelIds"`
	TextBody    string       `json:"text_body"`
	HTMLBody    string       `json:"html_body"`
	Attachments []Attachment `json:"attachments"`
}

type OutgoingMessage struct {
	To        []string
	Subject   string
	Body      string
	Cc        []string
	Bcc       []string
	InReplyTo string // message ID of the message being replied to
}

type SendResult struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}
