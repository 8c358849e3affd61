// Package actions executes button press actions.
package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/eventbus"
)

// DefaultHTTPTimeout bounds an HTTP action
const DefaultHTTPTimeout = 10 * time.Second

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// MethodError is returned for an HTTP method outside GET/POST/PUT/DELETE/PATCH
type MethodError struct {
	Method string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("unsupported HTTP method: %s", e.Method)
}

// ShellError carries the captured stderr of a failed command.
type ShellError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ShellError) Error() string {
	return fmt.Sprintf("shell command %q failed (exit %d): %s", e.Command, e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Executor runs one action. Navigation variants publish to the bus.
type Executor struct {
	bus        *eventbus.Bus
	httpClient *http.Client
	shell      string
}

// NewExecutor creates an executor publishing navigation to bus
func NewExecutor(bus *eventbus.Bus) *Executor {
	return &Executor{
		bus:        bus,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		shell:      "/bin/sh",
	}
}

// Execute runs action to completion. It returns no payload.
func (e *Executor) Execute(ctx context.Context, action config.Action) error {
	switch a := action.(type) {
	case config.HTTPAction:
		log.Info().Str("method", a.Method).Str("url", a.URL).Msg("Executing HTTP action")
		return e.executeHTTP(ctx, a)
	case config.ShellAction:
		log.Info().Str("command", a.Command).Msg("Executing shell action")
		return e.executeShell(ctx, a)
	case config.NavigateAction:
		log.Info().Str("page", a.Page).Msg("Navigating to page")
		e.bus.Publish(eventbus.NavigateTo{Page: a.Page})
		return nil
	case config.BackAction:
		log.Info().Msg("Navigating back")
		e.bus.Publish(eventbus.NavigateBack{})
		return nil
	case config.HomeAction:
		log.Info().Msg("Navigating home")
		e.bus.Publish(eventbus.NavigateHome{})
		return nil
	case nil:
		return errors.New("no action")
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}

// executeHTTP sends the request. A non-2xx status is logged, not returned.
func (e *Executor) executeHTTP(ctx context.Context, a config.HTTPAction) error {
	method := strings.ToUpper(a.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return &MethodError{Method: a.Method}
	}

	var body io.Reader
	if a.Body != "" {
		body = strings.NewReader(a.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.URL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, a.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Str("method", method).Str("url", a.URL).Int("status", resp.StatusCode).Msg("HTTP action returned non-success status")
		return nil
	}
	log.Debug().Str("method", method).Str("url", a.URL).Int("status", resp.StatusCode).Msg("HTTP action completed")
	return nil
}

func (e *Executor) executeShell(ctx context.Context, a config.ShellAction) error {
	cmd := exec.CommandContext(ctx, e.shell, "-c", a.Command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ShellError{Command: a.Command, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("run %q: %w", a.Command, err)
	}

	if stdout.Len() > 0 {
		log.Debug().Str("command", a.Command).Str("output", strings.TrimSpace(stdout.String())).Msg("Shell action output")
	}
	return nil
}
