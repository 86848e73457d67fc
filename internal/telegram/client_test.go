package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-token", zap.NewNop())
	c.baseURL = srv.URL
	return c
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	if err := c.SendMessage(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/bottest-token/sendMessage" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotBody["chat_id"] != float64(42) || gotBody["text"] != "hello" {
		t.Fatalf("unexpected payload: %v", gotBody)
	}
}

func TestSendConfirmationKeyboard(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	if err := c.SendConfirmation(context.Background(), 1, "preview"); err != nil {
		t.Fatalf("SendConfirmation: %v", err)
	}
	markup, ok := gotBody["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("missing reply_markup: %v", gotBody)
	}
	raw, _ := json.Marshal(markup)
	var keyboard struct {
		InlineKeyboard [][]struct {
			CallbackData string `json:"callback_data"`
		} `json:"inline_keyboard"`
	}
	if err := json.Unmarshal(raw, &keyboard); err != nil {
		t.Fatalf("decoding keyboard: %v", err)
	}
	if len(keyboard.InlineKeyboard) != 1 || len(keyboard.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard shape: %v", keyboard)
	}
	if keyboard.InlineKeyboard[0][0].CallbackData != CallbackConfirmSend {
		t.Fatalf("first button: %s", keyboard.InlineKeyboard[0][0].CallbackData)
	}
	if keyboard.InlineKeyboard[0][1].CallbackData != CallbackCancelSend {
		t.Fatalf("second button: %s", keyboard.InlineKeyboard[0][1].CallbackData)
	}
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})

	err := c.SendMessage(context.Background(), 1, "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got != "telegram sendMessage: Bad Request: chat not found" {
		t.Fatalf("unexpected error: %s", got)
	}
}

func TestGetFileAndDownload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bottest-token/getFile":
			w.Write([]byte(`{"ok":true,"result":{"file_path":"documents/cv.pdf"}}`))
		case "/file/bottest-token/documents/cv.pdf":
			w.Write([]byte("%PDF-1.4"))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	path, err := c.GetFile(context.Background(), "file-id")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if path != "documents/cv.pdf" {
		t.Fatalf("unexpected path: %s", path)
	}

	data, err := c.Download(context.Background(), path)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected bytes: %q", data)
	}
}
