package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"sm2p/internal/config"
	"sm2p/internal/dedup"
	"sm2p/internal/ledger"
	"sm2p/internal/logging"
	"sm2p/internal/mail"
	"sm2p/internal/manager"
	"sm2p/internal/ocr"
	"sm2p/internal/pipeline"
	"sm2p/internal/security"
)

const envPrefix = "SM2P"

type options struct {
	configPath string
	envFile    string
	verbose    bool
	dumpConfig bool
	get        string
	importDir  string
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "./sm2p.ini", "Path of the INI configuration file")
	pflag.StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	pflag.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")
	pflag.BoolVar(&opts.dumpConfig, "dump-config", false, "Print the effective configuration and exit")
	pflag.StringVar(&opts.get, "get", "", "Print one setting given as <section>_<option> and exit")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [import-dir]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Without import-dir the mailbox is polled once for scan mails.")
		fmt.Fprintln(os.Stderr, "With import-dir every PDF in it is run through OCR and filed.")
		fmt.Fprintln(os.Stderr)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() > 1 {
		pflag.Usage()
		os.Exit(2)
	}
	opts.importDir = pflag.Arg(0)

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "sm2p: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	store, err := config.Load(opts.configPath,
		config.WithMaterializeDefaults(),
		config.WithEnvPrefix(envPrefix))
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings(store)
	if err != nil {
		return err
	}

	level := settings.LogLevel
	if opts.verbose {
		level = "debug"
	}
	log, closer, err := logging.New(logging.Options{
		FileName:   settings.LogFileName,
		MaxBytes:   settings.MaxFileSize,
		MaxBackups: settings.MaxBackups,
		Level:      level,
		Format:     settings.LogFormat,
		Console:    opts.verbose,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	processor, err := ocr.New(store, log)
	if err != nil {
		return err
	}

	if opts.get != "" || opts.dumpConfig {
		if err := manager.Declare(store); err != nil {
			return err
		}
		if err := security.Declare(store); err != nil {
			return err
		}
		if opts.get != "" {
			v, err := store.GetByFlatName(opts.get)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}
		return dumpConfig(store)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if opts.importDir != "" {
		return runImport(ctx, store, opts.importDir, processor, log, start)
	}

	scanner, err := newScanner(store, log)
	if err != nil {
		return err
	}
	return runPoll(ctx, settings, processor, scanner, log, start)
}

// newScanner returns the configured virus scanner. A scanner that cannot
// reach ClamAV is reported and replaced by none.
func newScanner(store *config.Store, log zerolog.Logger) (*security.Scanner, error) {
	scanner, err := security.New(store)
	if errors.Is(err, security.ErrUnavailable) {
		log.Warn().Err(err).Msg("Continuing without virus scanning")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if scanner.IsEnabled() {
		log.Info().Msg("Virus scanning enabled")
	}
	return scanner, nil
}

// dumpConfig materializes every declared option and prints the result.
func dumpConfig(store *config.Store) error {
	for _, section := range store.Sections() {
		for _, option := range store.Options(section) {
			if _, err := store.Get(section, option); err != nil {
				return err
			}
		}
	}
	_, err := store.WriteTo(os.Stdout)
	return err
}

func runImport(ctx context.Context, store *config.Store, dir string, processor *ocr.Processor,
	log zerolog.Logger, start time.Time) error {
	mgr, err := manager.NewManager(store, dir, processor, log)
	if err != nil {
		return err
	}
	stats, err := mgr.Run(ctx)
	log.Info().
		Int("discovered", stats.Discovered).
		Int("successful", stats.Successful).
		Int("failed", stats.Failed).
		Int("retried", stats.Retried).
		Int("workers", stats.Workers).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).
		Str("dest", processor.DestPath()).
		Msg("Import finished")
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d files could not be imported", stats.Failed, stats.Discovered)
	}
	return nil
}

func runPoll(ctx context.Context, settings *config.Settings, processor *ocr.Processor,
	scanner *security.Scanner, log zerolog.Logger, start time.Time) error {
	lock, err := ledger.Lock(settings.HashStore)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	l, err := ledger.Load(settings.HashStore, settings.HashBufferSize)
	if err != nil {
		return err
	}
	log.Debug().Int("entries", l.Len()).Str("path", settings.HashStore).Msg("Loaded hash ledger")

	gate := dedup.NewGate(l, settings.HashStore, []byte(settings.HashKey), dedup.WithLogger(log))
	fetcher := mail.NewIMAPFetcher(mail.IMAPConfig{
		Server:   settings.MailServer,
		UserName: settings.UserName,
		Password: settings.Password,
		Mailbox:  settings.Mailbox,
		Pin:      settings.Pin,
	}, log)

	stats, err := pipeline.New(fetcher, gate, processor, scanner, settings.TrustedSenders, log).Run(ctx)
	log.Info().
		Int("messages", stats.Messages).
		Int("untrusted", stats.Untrusted).
		Int("accepted", stats.Accepted).
		Int("duplicates", stats.Duplicates).
		Int("infected", stats.Infected).
		Int("failed", stats.Failed).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).
		Msg("Mail poll finished")
	return err
}
