package kintone

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Record is one kintone record: field code to field value, where each
// value keeps the API's {"type": ..., "value": ...} shape. The gateway
// passes records through untranslated.
type Record map[string]any

// GetRecord fetches a single record by ID.
func (c *Client) GetRecord(ctx context.Context, appID, recordID string) (Record, error) {
	query := url.Values{}
	query.Set("app", appID)
	query.Set("id", recordID)

	var out struct {
		Record Record `json:"record"`
	}
	if err := c.do(ctx, http.MethodGet, "record.json", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

// RecordList is a page of records plus the total match count.
type RecordList struct {
	Records    []Record `json:"records"`
	TotalCount int64    `json:"totalCount"`
}

// GetRecords fetches records matching a kintone query string. An empty
// query returns records in the app's default order. fields limits the
// returned field codes; nil returns all fields.
func (c *Client) GetRecords(ctx context.Context, appID, recordQuery string, fields []string) (RecordList, error) {
	query := url.Values{}
	query.Set("app", appID)
	query.Set("totalCount", "true")
	if recordQuery != "" {
		query.Set("query", recordQuery)
	}
	for i, f := range fields {
		query.Set(fmt.Sprintf("fields[%d]", i), f)
	}

	var out struct {
		Records    []Record `json:"records"`
		TotalCount string   `json:"totalCount"`
	}
	if err := c.do(ctx, http.MethodGet, "records.json", query, nil, &out); err != nil {
		return RecordList{}, err
	}

	total, err := strconv.ParseInt(out.TotalCount, 10, 64)
	if err != nil {
		total = int64(len(out.Records))
	}
	return RecordList{Records: out.Records, TotalCount: total}, nil
}

// AddRecord creates one record and returns its new ID and revision.
func (c *Client) AddRecord(ctx context.Context, appID string, record Record) (id, revision string, err error) {
	body := map[string]any{
		"app":    appID,
		"record": record,
	}
	var out struct {
		ID       string `json:"id"`
		Revision string `json:"revision"`
	}
	if err := c.do(ctx, http.MethodPost, "record.json", nil, body, &out); err != nil {
		return "", "", err
	}
	return out.ID, out.Revision, nil
}

// AddRecords creates up to 100 records in one request, the API's batch
// limit, and returns the new IDs in input order.
func (c *Client) AddRecords(ctx context.Context, appID string, records []Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > 100 {
		return nil, fmt.Errorf("kintone: at most 100 records per request, got %d", len(records))
	}

	body := map[string]any{
		"app":     appID,
		"records": records,
	}
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := c.do(ctx, http.MethodPost, "records.json", nil, body, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// UpdateRecord updates one record and returns the new revision. An empty
// revision skips the optimistic-concurrency check.
func (c *Client) UpdateRecord(ctx context.Context, appID, recordID, revision string, record Record) (string, error) {
	body := map[string]any{
		"app":    appID,
		"id":     recordID,
		"record": record,
	}
	if revision != "" {
		body["revision"] = revision
	}
	var out struct {
		Revision string `json:"revision"`
	}
	if err := c.do(ctx, http.MethodPut, "record.json", nil, body, &out); err != nil {
		return "", err
	}
	return out.Revision, nil
}

// DeleteRecords deletes records by ID.
func (c *Client) DeleteRecords(ctx context.Context, appID string, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	body := map[string]any{
		"app": appID,
		"ids": recordIDs,
	}
	return c.do(ctx, http.MethodDelete, "records.json", nil, body, nil)
}
