// Package pipeline runs one mailbox poll: it takes the pending scan mails,
// drops untrusted senders and already seen attachments, and files the rest.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"sm2p/internal/converter"
	"sm2p/internal/dedup"
	"sm2p/internal/ledger"
	"sm2p/internal/mail"
	"sm2p/internal/security"
)

var errInfected = errors.New("attachment is infected")

// Processor files a PDF and returns where it went.
type Processor interface {
	Process(ctx context.Context, pdf []byte) (string, error)
}

// Stats counts what one poll did.
type Stats struct {
	Messages   int
	Untrusted  int
	Accepted   int
	Duplicates int
	Infected   int
	Failed     int
}

// Pipeline wires the collaborators of a poll.
type Pipeline struct {
	fetcher   mail.Fetcher
	gate      *dedup.Gate
	processor Processor
	scanner   *security.Scanner
	trusted   []string
	log       zerolog.Logger
}

// New returns a pipeline. scanner may be nil.
func New(fetcher mail.Fetcher, gate *dedup.Gate, processor Processor, scanner *security.Scanner,
	trusted []string, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		gate:      gate,
		processor: processor,
		scanner:   scanner,
		trusted:   trusted,
		log:       log,
	}
}

// Run performs one poll. Failures of single attachments are logged and
// counted; an error is returned only when the mailbox cannot be read, the
// ledger cannot be persisted, or ctx is cancelled.
//
// A message is marked seen once it needs no further work: its sender is
// untrusted, or every document in it was filed, already known, or infected.
// Messages with a failed document stay pending and are fetched again by the
// next poll.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	messages, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch mail: %w", err)
	}

	var finished []uint32
	for _, msg := range messages {
		if err = ctx.Err(); err != nil {
			break
		}
		var done bool
		done, err = p.handleMessage(ctx, &stats, msg)
		if done {
			finished = append(finished, msg.UID)
		}
		if err != nil {
			break
		}
	}

	if markErr := p.fetcher.MarkSeen(ctx, finished); markErr != nil {
		// still unseen, the ledger turns them into duplicates next time
		p.log.Warn().Err(markErr).Int("count", len(finished)).Msg("Failed to mark messages seen")
		if err == nil {
			err = fmt.Errorf("failed to mark messages seen: %w", markErr)
		}
	}
	return stats, err
}

// handleMessage runs the documents of msg through the gate. It reports
// whether the message is finished.
func (p *Pipeline) handleMessage(ctx context.Context, stats *Stats, msg *mail.Message) (bool, error) {
	stats.Messages++

	sender, ok := mail.TrustedSender(msg.From, p.trusted)
	if !ok {
		p.log.Info().Str("from", msg.From).Uint32("uid", msg.UID).Msg("Ignoring mail from untrusted sender")
		stats.Untrusted++
		return true, nil
	}
	log := p.log.With().Str("sender", sender).Uint32("uid", msg.UID).Logger()
	log.Debug().
		Str("subject", msg.Subject).
		Int("pdfs", len(msg.PDFs)).
		Int("jpegs", len(msg.JPEGs)).
		Msg("Received email")

	finished := true
	for _, pdf := range msg.PDFs {
		ok, err := p.admit(ctx, log, stats, pdf, func() ([]byte, error) { return pdf, nil })
		if err != nil {
			return false, err
		}
		finished = finished && ok
	}

	if len(msg.JPEGs) > 0 {
		images := msg.JPEGs
		ok, err := p.admit(ctx, log, stats, bytes.Join(images, nil), func() ([]byte, error) {
			return converter.ImagesToPDF(images)
		})
		if err != nil {
			return false, err
		}
		finished = finished && ok
	}
	return finished, nil
}

// admit runs one document through the dedup gate. key is the content the
// fingerprint is taken over; render produces the PDF to file. It reports
// false when the document failed and should be tried again.
func (p *Pipeline) admit(ctx context.Context, log zerolog.Logger, stats *Stats, key []byte,
	render func() ([]byte, error)) (bool, error) {

	var dest string
	verdict, err := p.gate.Process(key, func() error {
		if err := p.scan(key); err != nil {
			return err
		}
		pdf, err := render()
		if err != nil {
			return err
		}
		dest, err = p.processor.Process(ctx, pdf)
		return err
	})

	switch {
	case errors.Is(err, ledger.ErrPersist):
		return false, err
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, errInfected):
		log.Error().Err(err).Msg("Skipping infected attachment")
		stats.Infected++
	case err != nil:
		log.Error().Err(err).Msg("Failed to process attachment")
		stats.Failed++
		return false, nil
	case verdict == dedup.Duplicate:
		stats.Duplicates++
	default:
		log.Info().Str("dest", dest).Msg("Processed attachment")
		stats.Accepted++
	}
	return true, nil
}

func (p *Pipeline) scan(data []byte) error {
	if p.scanner == nil || !p.scanner.IsEnabled() {
		return nil
	}
	res, err := p.scanner.ScanBytes(data)
	if err != nil {
		return err
	}
	if res.Infected {
		return fmt.Errorf("%w: %s", errInfected, strings.Join(res.Threats, ", "))
	}
	return nil
}
