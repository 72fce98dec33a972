// scriptnav/scriptnav_utils.go
// Configuration file helpers, path/URI validation and LSP position conversion.
package scriptnav

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// errConfigParse marks a config file that exists but does not decode.
var errConfigParse = errors.New("parsing config file")

// ============================================================================
// Logging & Config File Helpers
// ============================================================================

// ParseLogLevel converts a level name (debug, info, warn, error) to a slog level.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level string: %q (expected debug, info, warn, or error)", levelStr)
}

// GetConfigPaths returns the primary (XDG) and secondary (OS user config dir)
// config file locations.
func GetConfigPaths(logger *slog.Logger) (primary string, secondary string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var pathErrors []error

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		primary = filepath.Join(xdg, configDirName, defaultConfigFileName)
	} else if home, homeErr := os.UserHomeDir(); homeErr == nil {
		primary = filepath.Join(home, ".config", configDirName, defaultConfigFileName)
	} else {
		pathErrors = append(pathErrors, fmt.Errorf("cannot determine home directory: %w", homeErr))
	}

	if cfgDir, dirErr := os.UserConfigDir(); dirErr == nil {
		secondary = filepath.Join(cfgDir, configDirName, defaultConfigFileName)
	} else {
		pathErrors = append(pathErrors, fmt.Errorf("cannot determine user config directory: %w", dirErr))
	}

	if primary == "" && secondary != "" {
		primary, secondary = secondary, ""
	}
	logger.Debug("Resolved config paths", "primary", primary, "secondary", secondary)
	if primary == "" {
		return "", "", errors.Join(pathErrors...)
	}
	return primary, secondary, nil
}

// LoadAndMergeConfig reads a JSON or YAML config file and merges the fields it
// sets into cfg. A missing file is not an error and reports loaded == false.
func LoadAndMergeConfig(path string, cfg *Config, logger *slog.Logger) (loaded bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			logger.Debug("Config file not found", "path", path)
			return false, nil
		}
		return false, fmt.Errorf("reading config file %s: %w", path, readErr)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		logger.Warn("Config file is empty, ignoring", "path", path)
		return true, nil
	}

	var fileCfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return true, fmt.Errorf("%w %s as YAML: %w", errConfigParse, path, err)
		}
	default:
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return true, fmt.Errorf("%w %s as JSON: %w", errConfigParse, path, err)
		}
	}
	mergeFileConfig(cfg, &fileCfg)
	return true, nil
}

func mergeFileConfig(cfg *Config, fc *FileConfig) {
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.SourceExtension != nil {
		cfg.SourceExtension = *fc.SourceExtension
	}
	if fc.DynamicParamsForOtherModules != nil {
		cfg.DynamicParamsForOtherModules = *fc.DynamicParamsForOtherModules
	}
	if fc.AdditionalDynamicModules != nil {
		cfg.AdditionalDynamicModules = *fc.AdditionalDynamicModules
	}
	if fc.SearchPaths != nil {
		cfg.SearchPaths = *fc.SearchPaths
	}
	if fc.BuiltinModules != nil {
		cfg.BuiltinModules = *fc.BuiltinModules
	}
	if fc.MemoryCacheTTLSeconds != nil {
		cfg.MemoryCacheTTLSeconds = *fc.MemoryCacheTTLSeconds
	}
	if fc.MemoryCacheMaxBytes != nil {
		cfg.MemoryCacheMaxBytes = *fc.MemoryCacheMaxBytes
	}
	if fc.UseDiskIndex != nil {
		cfg.UseDiskIndex = *fc.UseDiskIndex
	}
	if fc.IndexPath != nil {
		cfg.IndexPath = *fc.IndexPath
	}
	if fc.ScanWorkers != nil {
		cfg.ScanWorkers = *fc.ScanWorkers
	}
	if fc.MaxCompletions != nil {
		cfg.MaxCompletions = *fc.MaxCompletions
	}
}

// WriteDefaultConfig writes cfg to path, creating parent directories. The
// format follows the file extension.
func WriteDefaultConfig(path string, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	logger.Info("Wrote default config file", "path", path)
	return nil
}

// ============================================================================
// Path Helpers
// ============================================================================

// ValidateAndGetFilePath turns a file:// URI or a plain path into a cleaned
// absolute path.
func ValidateAndGetFilePath(uriOrPath string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if uriOrPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidURI)
	}
	path := uriOrPath
	if strings.Contains(uriOrPath, "://") {
		u, err := url.Parse(uriOrPath)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidURI, err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
		}
		path = u.Path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	logger.Debug("Validated file path", "input", uriOrPath, "path", abs)
	return abs, nil
}

// PathToURI converts an absolute path to a file:// URI.
func PathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// ============================================================================
// LSP Position Conversion Helpers
// ============================================================================

// LspPositionToPos converts a 0-based LSP line/character (UTF-16) to a
// zero-based line and byte column. Offsets past the end of a line clamp to it.
func LspPositionToPos(content []byte, lspPos LSPPosition) (Pos, error) {
	if content == nil {
		return Pos{}, fmt.Errorf("%w: file content is nil", ErrPositionConversion)
	}
	targetLine := int(lspPos.Line)
	targetUTF16Char := int(lspPos.Character)

	currentLine := 0
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	for scanner.Scan() {
		if currentLine == targetLine {
			lineTextBytes := scanner.Bytes()
			col, convErr := Utf16OffsetToBytes(lineTextBytes, targetUTF16Char)
			if convErr != nil {
				if !errors.Is(convErr, ErrPositionOutOfRange) {
					return Pos{}, fmt.Errorf("%w: line %d: %w", ErrPositionConversion, currentLine, convErr)
				}
				slog.Debug("UTF16 offset out of range, clamping to line end", "line", targetLine, "char", targetUTF16Char)
				col = len(lineTextBytes)
			}
			return Pos{Line: currentLine, Column: col}, nil
		}
		currentLine++
	}
	if err := scanner.Err(); err != nil {
		return Pos{}, fmt.Errorf("%w: error scanning file content: %w", ErrPositionConversion, err)
	}

	// Cursor on the empty line after a trailing newline.
	if currentLine == targetLine {
		if targetUTF16Char == 0 {
			return Pos{Line: currentLine}, nil
		}
		return Pos{}, fmt.Errorf("%w: invalid character offset %d on line %d (after last line with content)", ErrPositionOutOfRange, targetUTF16Char, targetLine)
	}
	return Pos{}, fmt.Errorf("%w: LSP line %d not found in file (total lines scanned %d)", ErrPositionOutOfRange, targetLine, currentLine)
}

// PosToLSPPosition converts a zero-based line and byte column to an LSP
// position. Columns past the end of the line (the virtual closing bracket)
// clamp to the line end.
func PosToLSPPosition(content []byte, pos Pos) (LSPPosition, error) {
	if pos.Line < 0 || pos.Column < 0 {
		return LSPPosition{}, fmt.Errorf("%w: %s", ErrInvalidPositionInput, pos)
	}
	lines := bytes.Split(content, []byte("\n"))
	if pos.Line >= len(lines) {
		return LSPPosition{}, fmt.Errorf("%w: line %d of %d", ErrPositionOutOfRange, pos.Line, len(lines))
	}
	line := bytes.TrimSuffix(lines[pos.Line], []byte("\r"))
	col := pos.Column
	if col > len(line) {
		col = len(line)
	}
	utf16Col, err := bytesToUTF16Offset(line[:col])
	if err != nil {
		return LSPPosition{}, fmt.Errorf("%w: %w", ErrPositionConversion, err)
	}
	return LSPPosition{Line: uint32(pos.Line), Character: uint32(utf16Col)}, nil
}

// Utf16OffsetToBytes converts a 0-based UTF-16 offset within a line to a 0-based byte offset.
func Utf16OffsetToBytes(line []byte, utf16Offset int) (int, error) {
	if utf16Offset < 0 {
		return 0, fmt.Errorf("%w: invalid utf16Offset: %d (must be >= 0)", ErrInvalidPositionInput, utf16Offset)
	}
	if utf16Offset == 0 {
		return 0, nil
	}

	byteOffset := 0
	currentUTF16Offset := 0
	for byteOffset < len(line) && currentUTF16Offset < utf16Offset {
		r, size := utf8.DecodeRune(line[byteOffset:])
		if r == utf8.RuneError && size <= 1 {
			return byteOffset, fmt.Errorf("%w at byte offset %d", ErrInvalidUTF8, byteOffset)
		}
		utf16Units := 1
		if r > 0xFFFF {
			utf16Units = 2
		}
		// A target inside a surrogate pair resolves to the rune start.
		if currentUTF16Offset+utf16Units > utf16Offset {
			return byteOffset, nil
		}
		currentUTF16Offset += utf16Units
		byteOffset += size
	}
	if currentUTF16Offset < utf16Offset {
		return len(line), fmt.Errorf("%w: utf16Offset %d is beyond the line length in UTF-16 units (%d)", ErrPositionOutOfRange, utf16Offset, currentUTF16Offset)
	}
	return byteOffset, nil
}

// bytesToUTF16Offset calculates the number of UTF-16 code units for a byte slice.
func bytesToUTF16Offset(b []byte) (int, error) {
	utf16Offset := 0
	byteOffset := 0
	for byteOffset < len(b) {
		r, size := utf8.DecodeRune(b[byteOffset:])
		if r == utf8.RuneError && size <= 1 {
			return utf16Offset, fmt.Errorf("%w at byte offset %d within slice", ErrInvalidUTF8, byteOffset)
		}
		if r > 0xFFFF {
			utf16Offset += 2
		} else {
			utf16Offset++
		}
		byteOffset += size
	}
	return utf16Offset, nil
}
