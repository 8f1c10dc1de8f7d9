package lsp

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project"
	"github.com/dshills/buildsync/internal/project/progress"
	"github.com/dshills/buildsync/internal/project/update"
)

// Service status types sent with language/status.
const (
	StatusStarting = "Starting"
	StatusStarted  = "Started"
	StatusError    = "Error"
	StatusMessage  = "Message"
)

// progressTotal is the totalWork reported for every task.
const progressTotal = 100

// Client sends server-initiated notifications to the connected client.
type Client struct {
	t      *Transport
	logger *zap.Logger

	mu       sync.Mutex
	progress map[string]string // task -> progress id
}

var (
	_ project.Notifier    = (*Client)(nil)
	_ update.StatusSender = (*Client)(nil)
	_ progress.Reporter   = (*Client)(nil)
)

// NewClient creates a client sending over t.
func NewClient(t *Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		t:        t,
		logger:   logger.Named("client"),
		progress: make(map[string]string),
	}
}

// SendActionableNotification sends language/actionableNotification.
func (c *Client) SendActionableNotification(ctx context.Context, n project.ActionableNotification) error {
	return c.t.Notify(ctx, MethodActionableNotification, n)
}

// SendStatus sends a language/status message.
func (c *Client) SendStatus(ctx context.Context, message string) error {
	return c.SendServiceStatus(ctx, StatusMessage, message)
}

// SendServiceStatus sends language/status with the given type.
func (c *Client) SendServiceStatus(ctx context.Context, typ, message string) error {
	return c.t.Notify(ctx, MethodStatus, StatusParams{Type: typ, Message: message})
}

// Report sends language/progressReport. Delivery failures are logged.
func (c *Client) Report(ctx context.Context, r progress.Report) {
	params := ProgressReportParams{
		ID:        c.progressID(r.Task, r.Done),
		Task:      r.Task,
		SubTask:   r.Subtask,
		WorkDone:  int(r.PercentComplete()),
		TotalWork: progressTotal,
		Complete:  r.Done,
	}
	params.Status = fmt.Sprintf("%d%% %s", params.WorkDone, r.Task)
	if r.Subtask != "" {
		params.Status = fmt.Sprintf("%d%% %s", params.WorkDone, r.Subtask)
	}

	if err := c.t.Notify(context.WithoutCancel(ctx), MethodProgressReport, params); err != nil {
		c.logger.Debug("progress not sent", zap.String("task", r.Task), zap.Error(err))
	}
}

// progressID returns the id of the task's report stream, forgetting it
// once the task is done.
func (c *Client) progressID(task string, done bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.progress[task]
	if !ok {
		id = uuid.NewString()
		c.progress[task] = id
	}
	if done {
		delete(c.progress, task)
	}
	return id
}
