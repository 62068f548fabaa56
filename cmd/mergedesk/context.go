package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mergedesk/internal/config"
	"mergedesk/internal/journal"
	"mergedesk/internal/logging"
	"mergedesk/internal/notify"
	"mergedesk/internal/remote"
)

type commandContext struct {
	configFlag *string
	yesFlag    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	journalMu sync.Mutex
	journal   *journal.Store
}

func newCommandContext(configFlag *string, yesFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		yesFlag:    yesFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// loggerValue falls back to a no-op logger when the log file cannot be opened.
func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg := c.configValue()
		if cfg == nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) backend() (*remote.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return remote.New(cfg.Backend.BaseURL,
		remote.WithToken(cfg.Backend.Token),
		remote.WithTimeout(cfg.BackendTimeout()),
	)
}

func (c *commandContext) openJournal() (*journal.Store, error) {
	c.journalMu.Lock()
	defer c.journalMu.Unlock()
	if c.journal != nil {
		return c.journal, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := journal.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	c.journal = store
	return store, nil
}

func (c *commandContext) close() {
	c.journalMu.Lock()
	defer c.journalMu.Unlock()
	if c.journal != nil {
		_ = c.journal.Close()
		c.journal = nil
	}
}

// sink prints toasts to the command's stderr and forwards them to ntfy.
func (c *commandContext) sink(cmd *cobra.Command) notify.Sink {
	out := cmd.ErrOrStderr()
	return notify.Multi(
		notify.NewConsole(out, !shouldColorize(out)),
		notify.NewNtfy(c.configValue(), c.loggerValue()),
	)
}

func (c *commandContext) assumeYes() bool {
	return c.yesFlag != nil && *c.yesFlag
}

// confirmer returns the prompt used by destructive commands. --yes accepts
// everything; a non-interactive stdin without --yes declines.
func (c *commandContext) confirmer(cmd *cobra.Command) notify.Confirm {
	if c.assumeYes() {
		return notify.Accept
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return func(_ context.Context, question string) bool {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s (declined: stdin is not a terminal, pass --yes)\n", question)
			return false
		}
	}
	return promptConfirm(in, cmd.ErrOrStderr())
}

func promptConfirm(in io.Reader, out io.Writer) notify.Confirm {
	reader := bufio.NewReader(in)
	return func(_ context.Context, question string) bool {
		fmt.Fprintf(out, "%s [y/N]: ", question)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(out)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
