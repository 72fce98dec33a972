// scriptnav/scriptnav_utils_test.go
package scriptnav

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// TestLSPPositionConversion tests UTF-16 to byte offset conversion.
func TestLSPPositionConversion(t *testing.T) {
	tests := []struct {
		name          string
		lineContent   string
		utf16Offset   int
		wantByteOff   int
		wantErr       bool
		wantErrorType error
	}{
		{"ASCII start", "hello", 0, 0, false, nil},
		{"ASCII middle", "hello", 2, 2, false, nil},
		{"ASCII end", "hello", 5, 5, false, nil},
		{"ASCII past end", "hello", 6, 5, true, ErrPositionOutOfRange},
		{"2-byte UTF-8", "héllo", 2, 3, false, nil},
		{"3-byte UTF-8", "€ euro", 1, 3, false, nil},
		{"4-byte UTF-8 (surrogate pair)", "😂 joy", 2, 4, false, nil},
		{"4-byte UTF-8 middle (within surrogate)", "😂 joy", 1, 0, false, nil},
		{"mixed", "a é 😂 €", 7, 10, false, nil},
		{"empty line", "", 0, 0, false, nil},
		{"empty line past end", "", 1, 0, true, ErrPositionOutOfRange},
		{"negative offset", "abc", -1, 0, true, ErrInvalidPositionInput},
		{"invalid utf-8", "a\xffb", 2, 1, true, ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotByteOff, err := Utf16OffsetToBytes([]byte(tt.lineContent), tt.utf16Offset)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Utf16OffsetToBytes() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErrorType != nil && !errors.Is(err, tt.wantErrorType) {
				t.Errorf("Utf16OffsetToBytes() error type = %v, want %v", err, tt.wantErrorType)
			}
			if gotByteOff != tt.wantByteOff {
				t.Errorf("Utf16OffsetToBytes() = %d, want %d", gotByteOff, tt.wantByteOff)
			}
		})
	}
}

func TestLspPositionToPos(t *testing.T) {
	content := []byte("x = 1\ny = '😂' + f(\n")
	tests := []struct {
		name    string
		lsp     LSPPosition
		want    Pos
		wantErr error
	}{
		{"first line", LSPPosition{Line: 0, Character: 4}, Pos{0, 4}, nil},
		{"after surrogate pair", LSPPosition{Line: 1, Character: 7}, Pos{1, 9}, nil},
		{"clamped to line end", LSPPosition{Line: 0, Character: 40}, Pos{0, 5}, nil},
		{"line after trailing newline", LSPPosition{Line: 2, Character: 0}, Pos{2, 0}, nil},
		{"past trailing newline", LSPPosition{Line: 2, Character: 3}, Pos{}, ErrPositionOutOfRange},
		{"missing line", LSPPosition{Line: 7, Character: 0}, Pos{}, ErrPositionOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LspPositionToPos(content, tt.lsp)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LspPositionToPos: %v", err)
			}
			if got != tt.want {
				t.Errorf("LspPositionToPos = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := LspPositionToPos(nil, LSPPosition{}); !errors.Is(err, ErrPositionConversion) {
		t.Errorf("nil content err = %v, want ErrPositionConversion", err)
	}
}

func TestPosToLSPPosition(t *testing.T) {
	content := []byte("é = f(\r\nzz")
	tests := []struct {
		name    string
		pos     Pos
		want    LSPPosition
		wantErr error
	}{
		{"after two-byte rune", Pos{0, 2}, LSPPosition{Line: 0, Character: 1}, nil},
		{"virtual close clamps", Pos{0, 8}, LSPPosition{Line: 0, Character: 6}, nil},
		{"second line", Pos{1, 1}, LSPPosition{Line: 1, Character: 1}, nil},
		{"missing line", Pos{2, 0}, LSPPosition{}, ErrPositionOutOfRange},
		{"negative", Pos{0, -1}, LSPPosition{}, ErrInvalidPositionInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PosToLSPPosition(content, tt.pos)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PosToLSPPosition: %v", err)
			}
			if got != tt.want {
				t.Errorf("PosToLSPPosition = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidateAndGetFilePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "m.py")
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"file uri", PathToURI(file), file, false},
		{"plain path", file, file, false},
		{"unclean path", dir + "/sub/../m.py", file, false},
		{"empty", "", "", true},
		{"http scheme", "http://example.com/m.py", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAndGetFilePath(tt.in, newTestLogger(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidURI) {
					t.Errorf("err = %v, want ErrInvalidURI", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ValidateAndGetFilePath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPathToURI(t *testing.T) {
	got := PathToURI("/tmp/my project/m.py")
	if got != "file:///tmp/my%20project/m.py" {
		t.Errorf("PathToURI = %q", got)
	}
	if !strings.HasPrefix(PathToURI(t.TempDir()), "file:///") {
		t.Error("PathToURI did not produce a file URI")
	}
}
