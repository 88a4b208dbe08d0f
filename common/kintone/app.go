package kintone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// App is the summary kintone reports for one application.
type App struct {
	AppID       string `json:"appId"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SpaceID     any    `json:"spaceId"`
	ThreadID    any    `json:"threadId"`
	CreatedAt   string `json:"createdAt"`
	ModifiedAt  string `json:"modifiedAt"`
}

// GetApp fetches a single app by ID.
func (c *Client) GetApp(ctx context.Context, appID string) (App, error) {
	query := url.Values{}
	query.Set("id", appID)

	var out App
	if err := c.do(ctx, http.MethodGet, "app.json", query, nil, &out); err != nil {
		return App{}, err
	}
	return out, nil
}

// GetApps lists apps visible to the credential, paged by offset/limit.
// The API caps limit at 100.
func (c *Client) GetApps(ctx context.Context, offset, limit int) ([]App, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := url.Values{}
	query.Set("offset", fmt.Sprintf("%d", offset))
	query.Set("limit", fmt.Sprintf("%d", limit))

	var out struct {
		Apps []App `json:"apps"`
	}
	if err := c.do(ctx, http.MethodGet, "apps.json", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Apps, nil
}

// FormFields is the field configuration of an app. Properties stays raw:
// its shape varies per field type and the gateway never interprets it.
type FormFields struct {
	Properties json.RawMessage `json:"properties"`
	Revision   string          `json:"revision"`
}

// GetFormFields fetches an app's field configuration. When preview is
// true the pre-deployment (test environment) settings are returned.
func (c *Client) GetFormFields(ctx context.Context, appID string, preview bool) (FormFields, error) {
	query := url.Values{}
	query.Set("app", appID)

	path := "app/form/fields.json"
	if preview {
		path = "preview/app/form/fields.json"
	}

	var out FormFields
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return FormFields{}, err
	}
	return out, nil
}
