package gmail

import (
	"context"
	"fmt"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/TechnicallyShaun/nota-diary/internal/logging"
)

// labelCache resolves label names to IDs once per run.
type labelCache struct {
	svc    *gmailapi.Service
	logger logging.Logger
	ids    map[string]string
}

func newLabelCache(svc *gmailapi.Service, logger logging.Logger) *labelCache {
	return &labelCache{svc: svc, logger: logger}
}

func (c *labelCache) load(ctx context.Context) error {
	if c.ids != nil {
		return nil
	}
	resp, err := c.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	c.ids = make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		c.ids[l.Name] = l.Id
	}
	return nil
}

// getOrCreate returns the ID for name, creating a visible label when missing.
func (c *labelCache) getOrCreate(ctx context.Context, name string) (string, error) {
	if err := c.load(ctx); err != nil {
		return "", err
	}
	if id, ok := c.ids[name]; ok {
		return id, nil
	}

	created, err := c.svc.Users.Labels.Create(user, &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	c.ids[name] = created.Id
	c.logger.Info("label created", logging.String("name", name), logging.String("id", created.Id))
	return created.Id, nil
}

// markProcessed adds the processed label and removes INBOX in one request.
func (c *labelCache) markProcessed(ctx context.Context, messageID, processedLabel string) error {
	req := &gmailapi.ModifyMessageRequest{}

	if processedLabel != "" {
		id, err := c.getOrCreate(ctx, processedLabel)
		if err != nil {
			return err
		}
		req.AddLabelIds = []string{id}
	}

	if err := c.load(ctx); err != nil {
		return err
	}
	if id, ok := c.ids[inboxLabel]; ok {
		req.RemoveLabelIds = []string{id}
	}

	if len(req.AddLabelIds) == 0 && len(req.RemoveLabelIds) == 0 {
		return nil
	}
	if _, err := c.svc.Users.Messages.Modify(user, messageID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify labels: %w", err)
	}
	return nil
}
