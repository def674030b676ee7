package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vthunder/lifeos/internal/config"
	"github.com/vthunder/lifeos/internal/effectors"
	"github.com/vthunder/lifeos/internal/markdown"
	"github.com/vthunder/lifeos/internal/scheduler"
	"github.com/vthunder/lifeos/internal/session"
	"github.com/vthunder/lifeos/internal/state"
	"github.com/vthunder/lifeos/internal/types"
	"golang.org/x/term"
)

// consoleChatID is the chat the terminal talks in; it is also its principal
const consoleChatID = "cli"

var (
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	reminderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long: `Talk to the assistant in the terminal. The reminder scheduler runs in the
background and prints reminders as they come due. Type /exit or press Ctrl-D
to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	started := time.Now()

	cfg, err := loadConfig(config.ModeChat)
	if err != nil {
		return err
	}
	// keep the log out of the conversation unless asked for
	if flags.logLevel == "" && os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	out := newConsole(cmd.OutOrStdout())
	rec := effectors.NewRecorder("", out.print)

	inspector := state.NewInspector(db, db.Path(), started)
	handler := session.NewHandler(newLoop(cfg, db), session.NewTransport(out, rec), session.Config{
		PrincipalID: consoleChatID,
		Inspector:   inspector,
	})

	sched := scheduler.New(scheduler.Config{
		Store:         db,
		Notifier:      handler,
		Interval:      time.Duration(cfg.PollInterval),
		DefaultChatID: consoleChatID,
	})
	inspector.SetSchedulerClock(sched.LastCycle)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	out.hint("Type a message. /clear forgets the conversation, /status shows the database, /exit quits.")
	return out.repl(ctx, cmd.InOrStdin(), func(text string) {
		handler.Handle(ctx, types.Inbound{
			Source:    "cli",
			ChatID:    consoleChatID,
			SenderID:  consoleChatID,
			Text:      text,
			Timestamp: time.Now(),
		})
	})
}

// console prints to the terminal. It is the sense half of the chat transport
// but never starts a listener: the REPL hands lines to the handler directly.
type console struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool
}

func newConsole(w io.Writer) *console {
	c := &console{w: w}
	if f, ok := w.(*os.File); ok {
		c.tty = term.IsTerminal(int(f.Fd()))
	}
	return c
}

func (c *console) Start(ctx context.Context, handle func(types.Inbound)) error { return nil }

func (c *console) Stop() error { return nil }

func (c *console) width() int {
	if f, ok := c.w.(*os.File); ok && c.tty {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

// print shows a message sent to the chat
func (c *console) print(msg types.Outbound) {
	text := msg.Text
	isReminder := strings.HasPrefix(text, "⏰")

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.tty:
		fmt.Fprintln(c.w, text)
	case isReminder:
		fmt.Fprintln(c.w, "\n"+reminderStyle.Render(text))
	default:
		fmt.Fprintln(c.w, markdown.SafeRender(c.width(), text))
	}
}

func (c *console) hint(text string) {
	if !c.tty {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, hintStyle.Render(text))
}

func (c *console) prompt() {
	if !c.tty {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, promptStyle.Render("you › "))
}

// repl reads lines until EOF, /exit or ctx is done
func (c *console) repl(ctx context.Context, in io.Reader, handle func(string)) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		errs <- sc.Err()
		close(lines)
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errs
			}
			text := strings.TrimSpace(line)
			switch text {
			case "":
				continue
			case "/exit", "/quit":
				return nil
			}
			handle(text)
		}
	}
}
