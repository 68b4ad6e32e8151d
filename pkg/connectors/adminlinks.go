package connectors

import (
	"context"
	"fmt"
	"net/url"

	"github.com/lockwise/support-agent/pkg/domain"
)

// AdminLinker generates admin console URLs for observed entities. It only
// trusts the context record handed to it; reconciliation against observed
// tool results happens upstream in the orchestrator.
type AdminLinker struct {
	baseURL string
}

// NewAdminLinker builds a link generator rooted at the console base URL.
func NewAdminLinker(baseURL string) *AdminLinker {
	return &AdminLinker{baseURL: baseURL}
}

// Links builds console links for every entity present in the context record.
func (a *AdminLinker) Links(ctx context.Context, entities map[string]any) ([]domain.AdminLink, error) {
	var links []domain.AdminLink

	if deviceID, ok := entities["device_id"].(string); ok && deviceID != "" {
		links = append(links, domain.AdminLink{
			Title:       "Device overview",
			URL:         a.join("devices", deviceID),
			Description: "Device record, properties, and connection history",
		})
	}
	if workspaceID, ok := entities["workspace_id"].(string); ok && workspaceID != "" {
		links = append(links, domain.AdminLink{
			Title:       "Workspace",
			URL:         a.join("workspaces", workspaceID),
			Description: "Workspace settings and audit trail",
		})
	}

	for _, id := range stringList(entities["access_codes"]) {
		links = append(links, domain.AdminLink{
			Title:       fmt.Sprintf("Access code %s", shortID(id)),
			URL:         a.join("access-codes", id),
			Description: "Access code provisioning state and history",
		})
	}
	for _, id := range stringList(entities["action_attempts"]) {
		links = append(links, domain.AdminLink{
			Title:       fmt.Sprintf("Action attempt %s", shortID(id)),
			URL:         a.join("action-attempts", id),
			Description: "Action attempt timeline and error detail",
		})
	}

	return links, nil
}

func (a *AdminLinker) join(kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", a.baseURL, kind, url.PathEscape(id))
}

// stringList tolerates both []string and []any shapes for id lists.
func stringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
