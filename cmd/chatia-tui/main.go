// ABOUTME: Terminal host for the chat widget
// ABOUTME: Mounts a session on chatia-gateway and drives it from stdin

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

const unmountTimeout = 3 * time.Second

func main() {
	server := flag.String("server", envOr("CHATIA_GATEWAY_URL", "http://localhost:8080"), "Gateway server URL")
	title := flag.String("title", "Asistente Virtual", "Title shown in the header")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, *title, os.Stdin, os.Stdout); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, server, title string, in io.Reader, out io.Writer) error {
	p, err := newPrinter(out, title, terminalWidth())
	if err != nil {
		return err
	}

	client := newWidgetClient(server)
	initial, err := client.mount(ctx)
	if err != nil {
		return err
	}
	defer func() {
		unmountCtx, cancel := context.WithTimeout(context.Background(), unmountTimeout)
		defer cancel()
		if err := client.unmount(unmountCtx); err != nil {
			p.note("unmount failed: %v", err)
		}
	}()

	p.header()
	p.show(initial)

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- client.follow(streamCtx, p.show)
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- io.EOF
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-streamDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("state stream: %w", err)
			}
			p.note("session ended")
			return nil

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)

		case line := <-lines:
			quit, err := handleLine(ctx, client, p, line)
			if err != nil {
				p.note("[error] %v", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// handleLine runs one input line. It reports whether the user asked to quit.
func handleLine(ctx context.Context, client *widgetClient, p *printer, line string) (bool, error) {
	switch strings.TrimSpace(line) {
	case "":
		return false, nil
	case "/quit", "/exit", "/q":
		return true, nil
	case "/toggle":
		return false, client.togglePanel(ctx)
	case "/close":
		return false, client.closePanel(ctx)
	case "/open":
		st, err := client.state(ctx)
		if err != nil {
			return false, err
		}
		if st.PanelOpen {
			return false, nil
		}
		return false, client.togglePanel(ctx)
	}

	if err := client.setDraft(ctx, line); err != nil {
		return false, err
	}
	outcome, err := client.submitDraft(ctx, uuid.New().String())
	if err != nil {
		return false, err
	}
	switch outcome {
	case "ignored_pending":
		p.note("Espera la respuesta anterior.")
	case "ignored_empty":
		p.note("Mensaje vacío.")
	}
	return false, nil
}
