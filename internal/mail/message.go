// Package mail retrieves scan mails and extracts their documents.
package mail

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/samber/lo"
)

// Content types of the parts we file.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
)

var addressPattern = regexp.MustCompile(`(?i)[^\s@<>]+@[^\s@<>]+\.[^\s@<>]+`)

// Message is a parsed scan mail.
type Message struct {
	UID     uint32
	From    string
	To      string
	Subject string
	Date    string

	// PDFs holds the decoded PDF parts in message order.
	PDFs [][]byte
	// JPEGs holds the decoded JPEG parts in message order. Together they
	// form one document.
	JPEGs [][]byte
}

// ParseMessage reads a raw RFC 822 message.
func ParseMessage(r io.Reader) (*Message, error) {
	envelope, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	msg := &Message{
		From:    envelope.GetHeader("From"),
		To:      envelope.GetHeader("To"),
		Subject: envelope.GetHeader("Subject"),
		Date:    envelope.GetHeader("Date"),
	}
	if envelope.Root == nil {
		return msg, nil
	}

	parts := envelope.Root.DepthMatchAll(func(p *enmime.Part) bool {
		return len(p.Content) > 0 && (isType(p, ContentTypePDF) || isType(p, ContentTypeJPEG))
	})
	for _, p := range parts {
		if isType(p, ContentTypePDF) {
			msg.PDFs = append(msg.PDFs, p.Content)
		} else {
			msg.JPEGs = append(msg.JPEGs, p.Content)
		}
	}
	return msg, nil
}

func isType(p *enmime.Part, contentType string) bool {
	return strings.EqualFold(p.ContentType, contentType)
}

// TrustedSender returns the address of the first trusted entry contained in
// from, ignoring case. Entries may be bare addresses or "Name <address>".
func TrustedSender(from string, trusted []string) (string, bool) {
	upper := strings.ToUpper(from)
	entry, ok := lo.Find(trusted, func(ts string) bool {
		ts = strings.TrimSpace(ts)
		return ts != "" && strings.Contains(upper, strings.ToUpper(ts))
	})
	if !ok {
		return "", false
	}
	if addr := addressPattern.FindString(entry); addr != "" {
		return addr, true
	}
	return strings.TrimSpace(entry), true
}
