package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"profileflow/pkg/domain"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	fields   map[string]string
	filename string
	content  []byte
}

type fakeTelegram struct {
	mu      sync.Mutex
	uploads []upload
	fail    bool
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"rawdha","username":"rawdha_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendDocument"):
		if f.fail {
			_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u := upload{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			u.fields[k] = v[0]
		}
		if fh := r.MultipartForm.File["document"]; len(fh) == 1 {
			u.filename = fh[0].Filename
			file, _ := fh[0].Open()
			u.content, _ = io.ReadAll(file)
			_ = file.Close()
		}
		f.mu.Lock()
		f.uploads = append(f.uploads, u)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100123,"type":"channel"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func newFakePublisher(t *testing.T, chat string) (*TelegramPublisher, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	p, err := NewTelegram(Config{Token: "TOKEN", ChatID: chat, APIEndpoint: srv.URL + "/bot%s/%s", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return p, fake
}

func artifact() domain.Artifact {
	return domain.Artifact{Key: "profiles/F0427/x.pdf", Name: "profile_F0427.pdf", Data: []byte("%PDF-1.3")}
}

func TestPublishUploadsDocument(t *testing.T) {
	p, fake := newFakePublisher(t, "-100123")
	require.NoError(t, p.Publish(context.Background(), artifact(), "<b>Profile ID:</b> F0427"))
	require.Len(t, fake.uploads, 1)
	u := fake.uploads[0]
	assert.Equal(t, "-100123", u.fields["chat_id"])
	assert.Equal(t, "<b>Profile ID:</b> F0427", u.fields["caption"])
	assert.Equal(t, tgbotapi.ModeHTML, u.fields["parse_mode"])
	assert.Equal(t, "profile_F0427.pdf", u.filename)
	assert.Equal(t, []byte("%PDF-1.3"), u.content)
}

func TestPublishToChannelUsername(t *testing.T) {
	p, fake := newFakePublisher(t, "@alrawdha")
	require.NoError(t, p.Publish(context.Background(), artifact(), "caption"))
	assert.Equal(t, "@alrawdha", fake.uploads[0].fields["chat_id"])
}

func TestPublishErrors(t *testing.T) {
	p, fake := newFakePublisher(t, "42")
	fake.fail = true
	err := p.Publish(context.Background(), artifact(), "caption")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	assert.Error(t, p.Publish(context.Background(), domain.Artifact{Key: "empty"}, "caption"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, artifact(), "caption"), context.Canceled)
}

func TestNewTelegramValidation(t *testing.T) {
	_, err := NewTelegram(Config{})
	assert.Error(t, err)
	_, err = newPublisher(nil, "not-a-chat")
	assert.Error(t, err)
}

type failingSender struct{}

func (failingSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	return tgbotapi.Message{}, errors.New("network down")
}

func TestPublishWrapsSenderError(t *testing.T) {
	p, err := newPublisher(failingSender{}, "1")
	require.NoError(t, err)
	assert.ErrorContains(t, p.Publish(context.Background(), artifact(), "c"), "network down")
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	l := LogPublisher{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, l.Publish(context.Background(), artifact(), "caption"))
	assert.Contains(t, buf.String(), "profile_F0427.pdf")
}
