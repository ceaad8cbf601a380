// Package console provides the interactive command loop of pnet connect.
package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// handshakeTimeout bounds open and close commands.
const handshakeTimeout = 10 * time.Second

// Console drives one session from a readline prompt.
type Console struct {
	rl *readline.Instance
	s  *session.Session
}

// New creates a console. The session is bound later with Bind.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pnet> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Bind sets the session commands act on.
func (c *Console) Bind(s *session.Session) {
	c.s = s
}

// Received prints a message from the peer.
func (c *Console) Received(s *session.Session, text string, ch wire.ChannelID) {
	fmt.Fprintf(c.rl.Stdout(), "[%s] %s\n", ch, text)
}

// Close releases the terminal.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(input, " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(cmd) {
		case "help", "?":
			c.printHelp()
		case "send", "s":
			c.cmdSend(wire.DefaultChannel, rest)
		case "sendto":
			c.cmdSendTo(rest)
		case "open":
			c.cmdOpen(ctx, strings.Fields(rest))
		case "close":
			c.cmdClose(ctx, strings.Fields(rest))
		case "channels", "ch":
			c.cmdChannels()
		case "status":
			c.cmdStatus()
		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
pnet Commands:
  send <text>                  - Send text on channel 0
  sendto <channel> <text>      - Send text on an open channel
  open <channel> [reliability] - Open a channel
  close <channel>              - Close a channel
  channels                     - List channels
  status                       - Show session status
  quit                         - Close the session and exit`)
}

func (c *Console) cmdSend(ch wire.ChannelID, text string) {
	if text == "" {
		fmt.Fprintln(c.rl.Stdout(), "Usage: send <text>")
		return
	}
	if err := c.s.SendOn(text, ch); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Send failed: %v\n", err)
	}
}

func (c *Console) cmdSendTo(args string) {
	chStr, text, _ := strings.Cut(args, " ")
	ch, err := parseChannel(chStr)
	if err != nil || strings.TrimSpace(text) == "" {
		fmt.Fprintln(c.rl.Stdout(), "Usage: sendto <channel> <text>")
		return
	}
	c.cmdSend(ch, strings.TrimSpace(text))
}

func (c *Console) cmdOpen(ctx context.Context, args []string) {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: open <channel> [reliability]")
		return
	}
	ch, err := parseChannel(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid channel: %v\n", err)
		return
	}
	rel := c.s.DefaultReliability()
	if len(args) == 2 {
		if rel, err = wire.ParseReliability(args[1]); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid reliability: %v\n", err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	opened, err := c.s.OpenChannel(rel, ch).Await(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Open failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Channel %s open (%s)\n", opened.ID(), opened.Reliability())
}

func (c *Console) cmdClose(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: close <channel>")
		return
	}
	ch, err := parseChannel(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid channel: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if _, err := c.s.CloseChannel(ch).Await(ctx); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Close failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Channel %s closed\n", ch)
}

func (c *Console) cmdChannels() {
	infos := c.s.Channels()
	fmt.Fprintf(c.rl.Stdout(), "\n%-10s %-10s %s\n", "CHANNEL", "STATE", "RELIABILITY")
	for _, info := range infos {
		fmt.Fprintf(c.rl.Stdout(), "%-10s %-10s %s\n", info.ID, info.State, info.Reliability)
	}
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	fmt.Fprintf(out, "\nSession:      %s\n", c.s.ID())
	fmt.Fprintf(out, "State:        %s\n", c.s.State())
	fmt.Fprintf(out, "Transport:    %s\n", c.s.Transport())
	fmt.Fprintf(out, "Remote:       %s\n", c.s.RemoteAddr())
	fmt.Fprintf(out, "Reliability:  %s (supported: %s)\n", c.s.DefaultReliability(), c.s.Reliabilities())
	fmt.Fprintf(out, "Up:           %s\n", time.Since(c.s.CreatedAt()).Round(time.Second))
}

func parseChannel(s string) (wire.ChannelID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return wire.ChannelID(n), nil
}
