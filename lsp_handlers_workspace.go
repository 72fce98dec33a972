// scriptnav/lsp_handlers_workspace.go
// Contains LSP method handlers related to workspace events (configuration changes).
package scriptnav

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/jsonrpc2"
)

// ============================================================================
// LSP Workspace Method Handlers
// ============================================================================

// handleDidChangeConfiguration merges the client's settings into the current
// configuration. Settings may be nested under "scriptnav" or sent flat.
func (s *Server) handleDidChangeConfiguration(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DidChangeConfigurationParams, logger *slog.Logger) (any, error) {
	configLogger := logger.With("op", "didChangeConfiguration")
	configLogger.Info("Handling workspace/didChangeConfiguration")

	fileCfg, err := settingsFileConfig(params.Settings)
	if err != nil {
		configLogger.Error("Failed to unmarshal workspace/didChangeConfiguration settings", "error", err, "raw_settings", string(params.Settings))
		return nil, nil
	}
	if fileCfg == (FileConfig{}) {
		configLogger.Debug("No relevant configuration changes found in workspace/didChangeConfiguration notification")
		return nil, nil
	}

	newConfig := s.navigator.GetCurrentConfig()
	mergeFileConfig(&newConfig, &fileCfg)
	if err := s.navigator.UpdateConfig(newConfig); err != nil {
		configLogger.Error("Failed to apply updated configuration", "error", err)
		s.sendShowMessage(MessageTypeError, fmt.Sprintf("Failed to apply configuration update: %v", err))
		return nil, nil
	}
	s.config = s.navigator.GetCurrentConfig()
	configLogger.Info("Server configuration updated via workspace/didChangeConfiguration")

	if newLevel, parseErr := ParseLogLevel(s.config.LogLevel); parseErr != nil {
		configLogger.Warn("Cannot update logger level due to parse error", "level_string", s.config.LogLevel, "error", parseErr)
	} else if s.logLevel != nil {
		s.logLevel.Set(newLevel)
		configLogger.Info("Server logger level updated", "new_level", newLevel)
	}
	return nil, nil
}

// settingsFileConfig decodes client settings. A "scriptnav" section wins over
// flat keys.
func settingsFileConfig(raw json.RawMessage) (FileConfig, error) {
	var nested struct {
		Scriptnav *FileConfig `json:"scriptnav"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Scriptnav != nil {
		return *nested.Scriptnav, nil
	}
	var flat FileConfig
	if err := json.Unmarshal(raw, &flat); err != nil {
		return FileConfig{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return flat, nil
}
