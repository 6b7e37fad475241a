package storage

import "testing"

func TestContentType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"hf/org/m/config.json", "application/json"},
		{"hf/org/m/model.safetensors", "application/octet-stream"},
		{"hf/org/m/pytorch_model.BIN", "application/octet-stream"},
		{"hf/org/m/model-q4.gguf", "application/octet-stream"},
		{"hf/org/m/README.md", "text/markdown; charset=utf-8"},
		{"hf/org/m/vocab.txt", "text/plain; charset=utf-8"},
		{"hf/org/m/tokenizer", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentType(tt.key); got != tt.want {
			t.Errorf("ContentType(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestDisposition(t *testing.T) {
	if got := Disposition("hf/org/m/model.safetensors"); got != "attachment; filename=model.safetensors" {
		t.Errorf("Disposition() = %q", got)
	}
	if got := Disposition("hf/org/m/my model.bin"); got != `attachment; filename="my model.bin"` {
		t.Errorf("Disposition() with space = %q", got)
	}
}
