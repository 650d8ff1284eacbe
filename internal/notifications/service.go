package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whisx/internal/config"
)

const userAgent = "whisx/0.1.0"

// RunReport is the outcome a run-completed notification describes.
type RunReport struct {
	Root      string
	Succeeded int
	Failed    int
	Restarts  int
	Elapsed   time.Duration
}

// Service defines the notification surface used by the run command and the
// supervisor.
type Service interface {
	NotifyRunStarted(ctx context.Context, root string, files, gpus int) error
	NotifyRunCompleted(ctx context.Context, report RunReport) error
	NotifyPoolRestarted(ctx context.Context, gpu int, idle time.Duration, restarts int) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, root string, files, gpus int) error {
	return n.send(ctx, payload{
		title:   "whisx - Run Started",
		message: fmt.Sprintf("Transcribing %d files under %s on %d GPU(s)", files, strings.TrimSpace(root), gpus),
		tags:    []string{"whisx", "run", "started"},
	})
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, report RunReport) error {
	elapsed := report.Elapsed.Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	data := payload{
		title:   "whisx - Run Complete",
		message: fmt.Sprintf("%s: %d transcribed in %s", report.Root, report.Succeeded, elapsed),
		tags:    []string{"whisx", "run", "completed"},
	}
	if report.Failed > 0 {
		data.title = "whisx - Run Complete (with errors)"
		data.message = fmt.Sprintf("%s: %d transcribed, %d failed in %s", report.Root, report.Succeeded, report.Failed, elapsed)
		data.priority = "high"
	}
	if report.Restarts > 0 {
		data.message += fmt.Sprintf(" (%d pool restarts)", report.Restarts)
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPoolRestarted(ctx context.Context, gpu int, idle time.Duration, restarts int) error {
	return n.send(ctx, payload{
		title:   "whisx - Pool Restarted",
		message: fmt.Sprintf("GPU %d idle for %s; restarting all workers (restart %d)", gpu, idle.Round(time.Second), restarts),
		tags:    []string{"whisx", "stall", "restart"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "whisx - Error",
		message:  builder.String(),
		tags:     []string{"whisx", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "whisx - Test",
		message:  "Notification system test",
		tags:     []string{"whisx", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int, int) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, RunReport) error      { return nil }
func (noopService) NotifyPoolRestarted(context.Context, int, time.Duration, int) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
