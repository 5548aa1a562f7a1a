package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramSendSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 42},
		})
	}))
	defer srv.Close()

	notifier := NewTelegram("token", srv.URL, time.Second, zerolog.Nop())

	messageID, err := notifier.Send(context.Background(), "chat", "funding rate alert")
	if err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if messageID != "42" {
		t.Fatalf("message_id 期望 42, 实际 %s", messageID)
	}
	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received["text"] != "funding rate alert" {
		t.Fatalf("text 不正确: %#v", received)
	}
}

func TestTelegramSendNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegram("token", srv.URL, time.Second, zerolog.Nop())

	if _, err := notifier.Send(context.Background(), "chat", "text"); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestChunkShortTextUnsplit(t *testing.T) {
	chunks := Chunk("hello", 100)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("短文本不应被切分: %#v", chunks)
	}
}

func TestChunkPrefersLineBoundaries(t *testing.T) {
	text := "line-one\nline-two\nline-three"
	chunks := Chunk(text, 18)

	if len(chunks) != 2 {
		t.Fatalf("期望 2 块, 实际 %d: %#v", len(chunks), chunks)
	}
	for _, chunk := range chunks {
		if len(chunk) > 18 {
			t.Fatalf("块长度超限: %q", chunk)
		}
		if strings.HasPrefix(chunk, "\n") || strings.HasSuffix(chunk, "\n") {
			t.Fatalf("块不应以换行开头或结尾: %q", chunk)
		}
	}
	if joined := strings.Join(chunks, "\n"); joined != text {
		t.Fatalf("拼接后应还原原文: %q", joined)
	}
}

func TestChunkHardSplitsLongLine(t *testing.T) {
	text := strings.Repeat("a", 25)
	chunks := Chunk(text, 10)

	if len(chunks) != 3 {
		t.Fatalf("期望 3 块, 实际 %d", len(chunks))
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("硬切分不应丢失内容")
	}
}
