package security

import (
	"strings"
	"testing"
)

func TestValidateRepoPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
		errType string
	}{
		// Valid paths
		{"valid simple", "tokenizer.json", false, ""},
		{"valid nested", "onnx/vision_model.onnx", false, ""},
		{"valid shard", "part-00000-cad4a140-cebd-46fa-b874-e8968f93e32e-c000.snappy.parquet", false, ""},
		{"dots in name", "src/.../file.txt", false, ""},

		// Invalid paths
		{"empty", "", true, "empty"},
		{"null byte", "file\x00.onnx", true, "null byte"},
		{"traversal simple", "../secret", true, "traversal"},
		{"traversal nested", "onnx/../../../etc/passwd", true, "traversal"},
		{"absolute unix", "/etc/passwd", true, "absolute"},
		{"absolute windows", "C:\\Windows", true, "absolute"},
		{"too long", strings.Repeat("a", 2000), true, "length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRepoPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRepoPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && tt.errType != "" && !strings.Contains(err.Error(), tt.errType) {
				t.Errorf("ValidateRepoPath(%q) error = %v, should contain %q", tt.path, err, tt.errType)
			}
		})
	}
}

func TestValidateRepoID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"Xenova/clip-vit-base-patch32", false},
		{"laion/laion2B-en-aesthetic", false},
		{"org/model_v1.2", false},
		{"noslash", true},
		{"/model", true},
		{"org/", true},
		{"a/b/c", true},
		{"../model", true},
		{"org/mo del", true},
		{"org/mödel", true},
	}

	for _, tt := range tests {
		err := ValidateRepoID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRepoID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"plain", "Downloading 10 shards", "Downloading 10 shards"},
		{"newline", "line1\nline2", "line1\\nline2"},
		{"carriage return", "50%\r60%", "50%\\r60%"},
		{"tab", "a\tb", "a\\tb"},
		{"escape codes", "\x1b[32mok", "[32mok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.expected {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}

	long := SanitizeForLogWithLength(strings.Repeat("x", 50), 10)
	if long != strings.Repeat("x", 10)+"..." {
		t.Errorf("truncated = %q", long)
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"short", "****"},
		{"hf_abcdefghijklmnop", "****mnop"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.token); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func BenchmarkSanitizeForLog(b *testing.B) {
	line := strings.Repeat("img2dataset progress line\t", 10)
	for i := 0; i < b.N; i++ {
		SanitizeForLog(line)
	}
}
