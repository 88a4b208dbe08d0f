package kintone

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lexicara/kintone-http-service/common/deploy"
)

// DeployTarget names one app to deploy, optionally pinned to a revision.
type DeployTarget struct {
	App      string `json:"app"`
	Revision string `json:"revision,omitempty"`
}

// DeployApp applies the pre-deployment settings of the given apps to the
// production environment. With revert set, the pre-deployment settings
// are discarded instead. The call only starts the deployment; progress is
// observed through DeployStatus.
func (c *Client) DeployApp(ctx context.Context, targets []DeployTarget, revert bool) error {
	if len(targets) == 0 {
		return fmt.Errorf("kintone: at least one deploy target is required")
	}
	body := map[string]any{
		"apps": targets,
	}
	if revert {
		body["revert"] = true
	}
	return c.do(ctx, http.MethodPost, "preview/app/deploy.json", nil, body, nil)
}

// DeployStatus reports the deployment status of one app. The endpoint
// answers for a batch of apps; a batch of one is submitted and the first
// entry read. The wire status string passes through untranslated so
// callers see exactly what the remote reported.
//
// DeployStatus implements deploy.StatusQuerier.
func (c *Client) DeployStatus(ctx context.Context, appID string) (deploy.Status, error) {
	query := url.Values{}
	query.Set("apps[0]", appID)

	var out struct {
		Apps []struct {
			App    string `json:"app"`
			Status string `json:"status"`
		} `json:"apps"`
	}
	if err := c.do(ctx, http.MethodGet, "preview/app/deploy.json", query, nil, &out); err != nil {
		return "", err
	}
	if len(out.Apps) == 0 {
		return "", fmt.Errorf("kintone: deploy status response carried no entries for app %s", appID)
	}
	return deploy.Status(out.Apps[0].Status), nil
}
