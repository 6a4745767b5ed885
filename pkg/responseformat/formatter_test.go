package responseformat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

func TestWriteResponseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	if err := NewFormatter().WriteResponse(rec, req, http.StatusCreated, payload{"2023-01-02", 3}); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	var got payload
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got != (payload{"2023-01-02", 3}) {
		t.Errorf("got %+v", got)
	}
}

func TestWriteResponseMsgPack(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"query", httptest.NewRequest(http.MethodGet, "/x?format=msgpack", nil)},
		{"accept", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/x", nil)
			r.Header.Set("Accept", MsgPackContentType)
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if err := NewFormatter().WriteResponse(rec, tt.req, http.StatusOK, payload{"2023-01-02", 3}); err != nil {
				t.Fatal(err)
			}
			if rec.Header().Get("Content-Type") != MsgPackContentType {
				t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
			}
			var got map[string]any
			if err := msgpack.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got["date"] != "2023-01-02" {
				t.Errorf("json tags not used for msgpack keys: %v", got)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	NewFormatter().WriteError(rec, req, http.StatusNotFound, "monitor not found")

	var body ErrorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusNotFound || body.Error != "monitor not found" {
		t.Errorf("unexpected error response %d %+v", rec.Code, body)
	}
}
