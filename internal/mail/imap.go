package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"
)

const defaultIMAPSPort = "993"

// Fetcher delivers the pending scan mails of one mailbox poll. Fetching
// leaves messages pending; MarkSeen takes them out of later polls.
type Fetcher interface {
	Fetch(ctx context.Context) ([]*Message, error)
	MarkSeen(ctx context.Context, uids []uint32) error
}

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Server   string // host or host:port, TLS only
	UserName string
	Password string
	Mailbox  string
	Pin      string // subject marker
}

// IMAPFetcher fetches unseen messages whose subject contains the pin. Bodies
// are fetched with BODY.PEEK so a message stays unseen until MarkSeen.
type IMAPFetcher struct {
	cfg IMAPConfig
	log zerolog.Logger
}

// NewIMAPFetcher returns a fetcher for cfg.
func NewIMAPFetcher(cfg IMAPConfig, log zerolog.Logger) *IMAPFetcher {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPFetcher{cfg: cfg, log: log}
}

// session dials the server, logs in, selects the mailbox and calls fn.
// Cancelling ctx aborts a pending command by closing the connection.
func (f *IMAPFetcher) session(ctx context.Context, fn func(c *client.Client) error) error {
	if f.cfg.Server == "" {
		return fmt.Errorf("no mail server configured")
	}
	addr := f.cfg.Server
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultIMAPSPort)
	}

	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer c.Logout()

	// go-imap v1 has no context support; closing the connection aborts a
	// pending command.
	stop := context.AfterFunc(ctx, func() { c.Terminate() })
	defer stop()

	if err := c.Login(f.cfg.UserName, f.cfg.Password); err != nil {
		return fmt.Errorf("login as %s failed: %w", f.cfg.UserName, err)
	}
	if _, err := c.Select(f.cfg.Mailbox, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", f.cfg.Mailbox, err)
	}
	if err := fn(c); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Fetch searches for pending messages, downloads and parses them. Messages
// that fail to parse are logged and skipped.
func (f *IMAPFetcher) Fetch(ctx context.Context) ([]*Message, error) {
	var messages []*Message
	err := f.session(ctx, func(c *client.Client) error {
		var err error
		messages, err = f.fetch(c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (f *IMAPFetcher) fetch(c *client.Client) ([]*Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header.Add("Subject", f.cfg.Pin)
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	f.log.Debug().Int("count", len(uids)).Str("mailbox", f.cfg.Mailbox).Msg("Found pending messages")
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	fetched := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, fetched)
	}()

	type rawMessage struct {
		uid  uint32
		body []byte
	}
	var raws []rawMessage
	for m := range fetched {
		body := m.GetBody(section)
		if body == nil {
			f.log.Warn().Uint32("uid", m.Uid).Msg("Server returned no body")
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			f.log.Warn().Err(err).Uint32("uid", m.Uid).Msg("Failed to read message body")
			continue
		}
		raws = append(raws, rawMessage{uid: m.Uid, body: data})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	messages := make([]*Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := ParseMessage(bytes.NewReader(raw.body))
		if err != nil {
			f.log.Error().Err(err).Uint32("uid", raw.uid).Msg("Skipping unparsable message")
			continue
		}
		msg.UID = raw.uid
		messages = append(messages, msg)
	}
	return messages, nil
}

// MarkSeen sets the \Seen flag on uids.
func (f *IMAPFetcher) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	return f.session(ctx, func(c *client.Client) error {
		seqset := new(imap.SeqSet)
		seqset.AddNum(uids...)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("failed to mark %d messages seen: %w", len(uids), err)
		}
		f.log.Debug().Int("count", len(uids)).Msg("Marked messages seen")
		return nil
	})
}
