// Command aircode sends and receives files over an authenticated,
// encrypted LAN connection paired by a human-memorable code phrase.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aircode-dev/aircode/internal/config"
	"github.com/aircode-dev/aircode/internal/orchestrator"
	"github.com/aircode-dev/aircode/internal/transferclient"
	"github.com/aircode-dev/aircode/internal/ui"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "aircode",
		Short:   "Send and receive files over a paired LAN connection",
		Version: version,
	}

	root.AddCommand(newSendCmd(), newReceiveCmd())
	return root
}

func newSendCmd() *cobra.Command {
	var (
		port     int
		timeout  time.Duration
		alias    string
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "send <path...>",
		Short: "Offer one or more files or directories to a receiver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			if timeout == 0 {
				timeout = time.Duration(cfg.DiscoveryTimeoutSeconds) * time.Second
			}

			ctx, cancel := signalContext()
			defer cancel()

			return runSend(ctx, orchestrator.SendConfig{
				Paths:          args,
				Port:           port,
				PortRangeStart: cfg.PortRangeStart,
				PortRangeEnd:   cfg.PortRangeEnd,
				Alias:          alias,
				Timeout:        timeout,
			}, headless)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to serve on (0 picks an available port)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "deadline to wait for a receiver (default from config, else 300s)")
	cmd.Flags().StringVar(&alias, "alias", "aircode-cli", "device alias shown to the receiver")
	cmd.Flags().BoolVar(&headless, "headless", false, "print plain status lines instead of the terminal UI")
	return cmd
}

func newReceiveCmd() *cobra.Command {
	var (
		outputDir  string
		timeout    time.Duration
		autoAccept bool
		headless   bool
	)

	cmd := &cobra.Command{
		Use:   "receive <code-phrase>",
		Short: "Receive files from a sender advertising the given code phrase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			if timeout == 0 {
				timeout = time.Duration(cfg.DiscoveryTimeoutSeconds) * time.Second
			}

			ctx, cancel := signalContext()
			defer cancel()

			return runReceive(ctx, orchestrator.ReceiveConfig{
				Phrase:     args[0],
				OutputDir:  outputDir,
				AutoAccept: autoAccept,
				Timeout:    timeout,
			}, headless)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "destination directory")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "deadline to wait for a sender (default from config, else 300s)")
	cmd.Flags().BoolVarP(&autoAccept, "yes", "y", false, "accept the manifest without prompting")
	cmd.Flags().BoolVar(&headless, "headless", false, "print plain status lines instead of the terminal UI")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func runSend(ctx context.Context, cfg orchestrator.SendConfig, headless bool) error {
	if headless {
		cfg.OnPhraseReady = func(phrase string) {
			_ = clipboard.WriteAll(phrase)
			fmt.Printf("Code: %s\n", phrase)
		}
		cfg.OnStatus = func(s string) { fmt.Println(s) }
		cfg.OnFileSent = func(name string, index, total int) {
			fmt.Printf("Sent %s (%d/%d)\n", name, index, total)
		}
		return orchestrator.Send(ctx, cfg)
	}

	model := ui.NewModel(ui.RoleSender, "")
	p := tea.NewProgram(model)

	cfg.OnPhraseReady = func(phrase string) {
		_ = clipboard.WriteAll(phrase)
		p.Send(ui.StatusMsg("Code: " + phrase))
	}
	cfg.OnStatus = func(s string) { p.Send(ui.StatusMsg(s)) }
	cfg.OnFileSent = func(name string, index, total int) {
		p.Send(ui.FileDoneMsg{Name: name, Index: index, Total: total})
	}

	var wg sync.WaitGroup
	var sendErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		sendErr = orchestrator.Send(ctx, cfg)
		if sendErr != nil {
			p.Send(ui.ErrorMsg(sendErr))
		} else {
			p.Send(ui.DoneMsg{Destination: "done"})
		}
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	wg.Wait()
	return sendErr
}

func runReceive(ctx context.Context, cfg orchestrator.ReceiveConfig, headless bool) error {
	if headless {
		cfg.Prompter = &stdinPrompter{}
		cfg.OnStatus = func(s string) { fmt.Println(s) }
		cfg.OnFile = func(name string, size uint64) {
			fmt.Printf("Received %s (%d bytes)\n", name, size)
		}
		return orchestrator.Receive(ctx, cfg)
	}

	model := ui.NewModel(ui.RoleReceiver, "")
	p := tea.NewProgram(model)

	cfg.Prompter = &stdinPrompter{program: p}
	cfg.OnStatus = func(s string) { p.Send(ui.StatusMsg(s)) }
	cfg.OnFile = func(name string, size uint64) {
		p.Send(ui.FileDoneMsg{Name: name})
	}

	var wg sync.WaitGroup
	var recvErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		recvErr = orchestrator.Receive(ctx, cfg)
		if recvErr != nil {
			p.Send(ui.ErrorMsg(recvErr))
		} else {
			p.Send(ui.DoneMsg{Destination: cfg.OutputDir})
		}
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	wg.Wait()
	return recvErr
}

// stdinPrompter satisfies transferclient.Prompter for interactive terminal
// use: read one line, trim the trailing newline. When program is set (the
// non-headless TUI path), Bubble Tea owns the terminal in raw mode, so the
// terminal is released for the duration of the read and restored
// afterward, the same dance Bubble Tea programs use to shell out to an
// external editor.
type stdinPrompter struct {
	program *tea.Program
}

func (p *stdinPrompter) Prompt(question string) (string, error) {
	if p.program != nil {
		p.program.ReleaseTerminal()
		defer p.program.RestoreTerminal()
	}

	fmt.Print(question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

var _ transferclient.Prompter = (*stdinPrompter)(nil)
