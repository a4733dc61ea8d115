// termtap-repl is an interactive console over the terminal session, useful for
// trying out prompt detection and command tracking without an MCP client.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/acolita/termtap/internal/config"
	"github.com/acolita/termtap/internal/logging"
	"github.com/acolita/termtap/internal/prompt"
	"github.com/acolita/termtap/internal/pty"
	"github.com/acolita/termtap/internal/session"
)

func main() {
	var (
		configPath string
		shell      string
		debug      bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&shell, "shell", "", "Shell binary to run (overrides config)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if shell != "" {
		cfg.Shell.Path = shell
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)

	ctrl, err := newController(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting shell: %v\n", err)
		os.Exit(1)
	}
	defer ctrl.Terminate()

	events, cancel := ctrl.Subscribe()
	defer cancel()
	go consumeEvents(events)

	fmt.Println("termtap console. Commands run in a persistent shell.")
	fmt.Println("  /status     show session state")
	fmt.Println("  /interrupt  send Ctrl+C to the running command")
	fmt.Println("  /reset      replace the shell with a fresh one")
	fmt.Println("  /quit       exit")
	fmt.Println("Control tokens like <Ctrl-C> or <Up> are sent as keystrokes.")
	fmt.Println("At a password prompt, press Enter for masked input.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()

		// A password prompt steals the line: an empty line opens a masked
		// input, anything else is sent as the answer.
		if ctrl.Status().PasswordMode {
			if line == "" {
				if err := answerPassword(ctrl); err != nil {
					fmt.Fprintf(os.Stderr, "password input: %v\n", err)
				}
			} else if err := ctrl.Write(line + "\n"); err != nil {
				fmt.Fprintf(os.Stderr, "write: %v\n", err)
			}
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/status":
			data, _ := json.MarshalIndent(ctrl.Status(), "", "  ")
			fmt.Println(string(data))
		case line == "/interrupt":
			if err := ctrl.Interrupt(); err != nil {
				fmt.Fprintf(os.Stderr, "interrupt: %v\n", err)
			}
		case line == "/reset":
			if err := ctrl.Reset(); err != nil {
				fmt.Fprintf(os.Stderr, "reset: %v\n", err)
			}
		case strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">"):
			if err := ctrl.Write(line); err != nil {
				fmt.Fprintf(os.Stderr, "write: %v\n", err)
			}
		case strings.TrimSpace(line) == "":
			if err := ctrl.Write("\n"); err != nil {
				fmt.Fprintf(os.Stderr, "write: %v\n", err)
			}
		default:
			if err := ctrl.Run(line); err != nil {
				fmt.Fprintf(os.Stderr, "run: %v\n", err)
			}
		}
	}
}

func newController(cfg *config.Config) (*session.Controller, error) {
	shellOpts := pty.DefaultOptions()
	if cfg.Shell.Path != "" {
		shellOpts.Shell = cfg.Shell.Path
	}
	if cfg.Shell.Sentinel != "" {
		shellOpts.Sentinel = cfg.Shell.Sentinel
	}
	shellOpts.SourceRC = cfg.Shell.SourceRC

	sessOpts := session.DefaultOptions()
	sessOpts.Boundary = prompt.NewBoundaryDetector(shellOpts.Sentinel)
	sessOpts.Password = prompt.NewPasswordDetector()
	sessOpts.PollInterval = cfg.Session.PollInterval
	sessOpts.CwdProbe = cfg.Session.CwdProbe
	sessOpts.Spawn = func() (session.Channel, error) {
		return pty.Spawn(shellOpts)
	}
	return session.New(sessOpts)
}

// consumeEvents streams session output to stdout.
func consumeEvents(events <-chan session.Event) {
	for ev := range events {
		switch ev.Type {
		case session.EventOutput:
			fmt.Print(ev.Output)
		case session.EventPasswordModeChanged:
			if ev.PasswordMode {
				fmt.Fprint(os.Stderr, "\n[password prompt detected, press Enter for masked input]\n")
			}
		case session.EventCwdChanged:
			slog.Debug("working directory changed", slog.String("cwd", ev.Cwd))
		case session.EventSessionError:
			fmt.Fprintf(os.Stderr, "\nsession error: %v\n", ev.Err)
		case session.EventClosed:
			fmt.Fprintln(os.Stderr, "\nsession closed")
			return
		}
	}
}

// answerPassword collects a masked line and feeds it to the shell.
func answerPassword(ctrl *session.Controller) error {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	return ctrl.Write(password + "\n")
}
