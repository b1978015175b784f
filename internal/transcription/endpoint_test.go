package transcription

import "testing"

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		path        string
		want        string
		expectError bool
	}{
		{"insecure page", "http://localhost:8080", "/transcribe", "ws://localhost:8080/transcribe", false},
		{"secure page", "https://resonance.example", "/transcribe", "wss://resonance.example/transcribe", false},
		{"page path is replaced", "https://example.com/app/index.html?x=1", "/transcribe", "wss://example.com/transcribe", false},
		{"default path", "http://127.0.0.1:9000", "", "ws://127.0.0.1:9000/transcribe", false},
		{"path without slash", "http://host", "live", "ws://host/live", false},
		{"websocket origin kept", "wss://host:443", "/transcribe", "wss://host:443/transcribe", false},
		{"file scheme", "file:///tmp/index.html", "/transcribe", "", true},
		{"missing host", "http://", "/transcribe", "", true},
		{"garbage", "://nope", "/transcribe", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Endpoint(tt.origin, tt.path)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
