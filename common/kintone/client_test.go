package kintone

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lexicara/kintone-http-service/common/deploy"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, Auth{Username: "admin", Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		auth        Auth
		expectError bool
	}{
		{"password auth", "https://example.cybozu.com", Auth{Username: "u", Password: "p"}, false},
		{"token auth", "https://example.cybozu.com", Auth{APIToken: "tok"}, false},
		{"missing credentials", "https://example.cybozu.com", Auth{}, true},
		{"username without password", "https://example.cybozu.com", Auth{Username: "u"}, true},
		{"empty base URL", "", Auth{APIToken: "tok"}, true},
		{"bad scheme", "ftp://example.cybozu.com", Auth{APIToken: "tok"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.baseURL, tt.auth)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestPasswordAuthHeader(t *testing.T) {
	want := base64.StdEncoding.EncodeToString([]byte("admin:secret"))

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Cybozu-Authorization"); got != want {
			t.Errorf("X-Cybozu-Authorization = %q, want %q", got, want)
		}
		if r.Header.Get("X-Cybozu-API-Token") != "" {
			t.Error("API token header should not be set with password auth")
		}
		w.Write([]byte(`{"record":{}}`))
	})

	if _, err := client.GetRecord(context.Background(), "1", "2"); err != nil {
		t.Fatal(err)
	}
}

func TestTokenAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Cybozu-API-Token"); got != "tok-123" {
			t.Errorf("X-Cybozu-API-Token = %q, want %q", got, "tok-123")
		}
		w.Write([]byte(`{"record":{}}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, Auth{APIToken: "tok-123"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.GetRecord(context.Background(), "1", "2"); err != nil {
		t.Fatal(err)
	}
}

func TestGetRecord(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/k/v1/record.json" {
			t.Errorf("Path = %q, want /k/v1/record.json", r.URL.Path)
		}
		if r.URL.Query().Get("app") != "7" || r.URL.Query().Get("id") != "42" {
			t.Errorf("Unexpected query: %v", r.URL.Query())
		}
		w.Write([]byte(`{"record":{"title":{"type":"SINGLE_LINE_TEXT","value":"hello"}}}`))
	})

	record, err := client.GetRecord(context.Background(), "7", "42")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := record["title"]; !ok {
		t.Errorf("Expected title field, got %v", record)
	}
}

func TestGetRecordsTotalCount(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("totalCount") != "true" {
			t.Error("Expected totalCount=true in query")
		}
		if r.URL.Query().Get("query") != `status = "open"` {
			t.Errorf("query param = %q", r.URL.Query().Get("query"))
		}
		w.Write([]byte(`{"records":[{},{}],"totalCount":"57"}`))
	})

	list, err := client.GetRecords(context.Background(), "7", `status = "open"`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Records) != 2 {
		t.Errorf("Records = %d, want 2", len(list.Records))
	}
	if list.TotalCount != 57 {
		t.Errorf("TotalCount = %d, want 57", list.TotalCount)
	}
}

func TestAddRecord(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %q, want POST", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["app"] != "7" {
			t.Errorf("app = %v, want 7", body["app"])
		}
		w.Write([]byte(`{"id":"100","revision":"1"}`))
	})

	id, revision, err := client.AddRecord(context.Background(), "7", Record{})
	if err != nil {
		t.Fatal(err)
	}
	if id != "100" || revision != "1" {
		t.Errorf("Got id=%q revision=%q", id, revision)
	}
}

func TestAddRecordsBatchLimit(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request should be issued for an oversized batch")
	})

	records := make([]Record, 101)
	if _, err := client.AddRecords(context.Background(), "7", records); err == nil {
		t.Error("Expected error for batch of 101 records")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"CB_VA01","id":"abc123","message":"Missing or invalid input."}`))
	})

	_, err := client.GetRecord(context.Background(), "7", "42")
	if err == nil {
		t.Fatal("Expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "CB_VA01" || apiErr.HTTPStatus != http.StatusBadRequest {
		t.Errorf("Unexpected APIError: %+v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "CB_VA01") {
		t.Errorf("Error string should mention the code: %q", apiErr.Error())
	}
}

func TestAPIErrorUnparseableBody(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := client.GetRecord(context.Background(), "7", "42")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want 502", apiErr.HTTPStatus)
	}
}

func TestDeployApp(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/k/v1/preview/app/deploy.json" {
			t.Errorf("Path = %q", r.URL.Path)
		}
		var body struct {
			Apps []DeployTarget `json:"apps"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if len(body.Apps) != 1 || body.Apps[0].App != "7" {
			t.Errorf("Unexpected deploy body: %+v", body)
		}
		w.Write([]byte(`{}`))
	})

	if err := client.DeployApp(context.Background(), []DeployTarget{{App: "7"}}, false); err != nil {
		t.Fatal(err)
	}
}

func TestDeployStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want deploy.Status
	}{
		{"processing", `{"apps":[{"app":"7","status":"PROCESSING"}]}`, deploy.StatusProcessing},
		{"success", `{"apps":[{"app":"7","status":"SUCCESS"}]}`, deploy.StatusSuccess},
		{"unknown passes through", `{"apps":[{"app":"7","status":"WARMING_UP"}]}`, deploy.Status("WARMING_UP")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("apps[0]") != "7" {
					t.Errorf("Expected batch of one, query: %v", r.URL.Query())
				}
				w.Write([]byte(tt.body))
			})

			got, err := client.DeployStatus(context.Background(), "7")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DeployStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeployStatusEmptyResponse(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"apps":[]}`))
	})

	if _, err := client.DeployStatus(context.Background(), "7"); err == nil {
		t.Error("Expected error for empty status response")
	}
}

func TestUploadFile(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		defer file.Close()
		if header.Filename != "report.csv" {
			t.Errorf("Filename = %q", header.Filename)
		}
		content, _ := io.ReadAll(file)
		if string(content) != "a,b,c" {
			t.Errorf("Content = %q", content)
		}
		w.Write([]byte(`{"fileKey":"key-1"}`))
	})

	key, err := client.UploadFile(context.Background(), "report.csv", strings.NewReader("a,b,c"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "key-1" {
		t.Errorf("fileKey = %q, want key-1", key)
	}
}

func TestDownloadFile(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fileKey") != "key-1" {
			t.Errorf("fileKey = %q", r.URL.Query().Get("fileKey"))
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("a,b,c"))
	})

	body, contentType, err := client.DownloadFile(context.Background(), "key-1")
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()

	if contentType != "text/csv" {
		t.Errorf("Content-Type = %q", contentType)
	}
	content, _ := io.ReadAll(body)
	if string(content) != "a,b,c" {
		t.Errorf("Content = %q", content)
	}
}
