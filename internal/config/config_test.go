package config

import "testing"

func TestConfig_ValidateForServer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database:  DBConfig{URL: "postgres://localhost/codesentry"},
				Webhook:   WebhookConfig{SigningSecret: "s3cr3t"},
				Embedding: EmbeddingConfig{Provider: "ollama", Dim: 768},
				LLM:       LLMConfig{Provider: "ollama"},
			},
			wantErr: false,
		},
		{
			name:    "missing database url",
			cfg:     Config{Webhook: WebhookConfig{SigningSecret: "s3cr3t"}, Embedding: EmbeddingConfig{Dim: 768}},
			wantErr: true,
		},
		{
			name: "missing webhook secret",
			cfg: Config{
				Database:  DBConfig{URL: "postgres://localhost/codesentry"},
				Embedding: EmbeddingConfig{Dim: 768},
			},
			wantErr: true,
		},
		{
			name: "gemini embedding provider without key",
			cfg: Config{
				Database:  DBConfig{URL: "postgres://localhost/codesentry"},
				Webhook:   WebhookConfig{SigningSecret: "s3cr3t"},
				Embedding: EmbeddingConfig{Provider: "gemini", Dim: 768},
			},
			wantErr: true,
		},
		{
			name: "zero dim",
			cfg: Config{
				Database: DBConfig{URL: "postgres://localhost/codesentry"},
				Webhook:  WebhookConfig{SigningSecret: "s3cr3t"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateForServer()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateForServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateForCLI(t *testing.T) {
	cfg := Config{}
	if err := cfg.ValidateForCLI(); err == nil {
		t.Fatal("expected error for missing database url")
	}
	cfg.Database.URL = "postgres://localhost/codesentry"
	if err := cfg.ValidateForCLI(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
