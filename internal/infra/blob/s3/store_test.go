package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"profileflow/internal/blob/core"
)

// mockRoundTripper provides a tiny fake S3 subset sufficient to exercise the adapter without network access.
type mockRoundTripper struct {
	mu    sync.Mutex
	state map[string]stored
	fail  bool
	calls int
}

type stored struct {
	body        []byte
	contentType string
}

// respond canonicalises header keys the way net/http does for real
// responses, so lookups such as Get("ETag") find them.
func respond(code int, body string, h http.Header) *http.Response {
	canonical := http.Header{}
	for k, vs := range h {
		for _, v := range vs {
			canonical.Add(k, v)
		}
	}
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body)), Header: canonical}
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return respond(http.StatusInternalServerError, "", nil), nil
	}
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req), nil
	}
	switch req.Method {
	case http.MethodHead:
		if st, ok := m.state[key]; ok {
			return respond(http.StatusOK, "", http.Header{
				"Content-Length": {strconv.Itoa(len(st.body))},
				"Content-Type":   {st.contentType},
				"ETag":           {"\"etag123\""},
				"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
			}), nil
		}
		return respond(http.StatusNotFound, "", nil), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		m.state[key] = stored{body: body, contentType: req.Header.Get("Content-Type")}
		return respond(http.StatusOK, "", http.Header{"ETag": {"\"etag-put\""}}), nil
	case http.MethodDelete:
		delete(m.state, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

// list pages one key at a time so the paginator is exercised.
func (m *mockRoundTripper) list(req *http.Request) *http.Response {
	prefix := req.URL.Query().Get("prefix")
	cont := req.URL.Query().Get("continuation-token")
	var keys []string
	for k := range m.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if cont != "" {
		start, _ = strconv.Atoi(cont)
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult>`)
	if start+1 < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", start+1)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	if start < len(keys) {
		k := keys[start]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunked unwraps a single-chunk aws-chunked payload.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	n, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || n <= 0 || int64(len(parts[1])) != n || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newMockStore(t *testing.T) (*Store, *mockRoundTripper) {
	t.Helper()
	rt := &mockRoundTripper{state: make(map[string]stored)}
	store, err := New(context.Background(), Config{
		Bucket:           "profiles-bucket",
		Endpoint:         "https://mock.s3.local",
		AccessKeyID:      "AKIA",
		SecretAccessKey:  "SECRET",
		PathStyle:        true,
		HTTPClient:       &http.Client{Transport: rt},
		RetryMaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return store, rt
}

func TestStoreMockedFlow(t *testing.T) {
	store, rt := newMockStore(t)
	ctx := context.Background()
	info, err := store.Put(ctx, "profiles/F0427/a.pdf", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "profiles/F0427/a.pdf" || info.Size != 5 || info.ETag != "etag-put" {
		t.Fatalf("unexpected info %#v", info)
	}
	if got := string(rt.state["profiles/F0427/a.pdf"].body); got != "hello" {
		t.Fatalf("stored body %q", got)
	}
	if _, err := store.Put(ctx, "profiles/F0427/a.pdf", bytes.NewReader([]byte("again")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	for _, k := range []string{"profiles/F0427/b.pdf", "profiles/M0100/c.pdf"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "profiles/F0427/")
	if err != nil || len(list) != 2 || list[0].Key != "profiles/F0427/a.pdf" {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := store.Delete(ctx, "profiles/F0427/a.pdf"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "profiles/F0427/a.pdf"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStoreBackendErrors(t *testing.T) {
	store, rt := newMockStore(t)
	rt.fail = true
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected put error")
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected list error")
	}
	if _, err := store.Delete(ctx, "k"); err == nil {
		t.Fatalf("expected delete error")
	}
	if rt.calls != 3 {
		t.Fatalf("expected one attempt per failing call, got %d requests", rt.calls)
	}
}

func TestRespondCanonicalisesHeaders(t *testing.T) {
	resp := respond(http.StatusOK, "", http.Header{"ETag": {"\"etag-put\""}})
	if got := resp.Header.Get("ETag"); got != "\"etag-put\"" {
		t.Fatalf("ETag lookup returned %q", got)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	store, _ := newMockStore(t)
	if store.Driver() != core.DriverS3 || store.Bucket() != "profiles-bucket" {
		t.Fatalf("unexpected store %s %s", store.Driver(), store.Bucket())
	}
}
