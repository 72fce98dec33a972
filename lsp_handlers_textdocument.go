// scriptnav/lsp_handlers_textdocument.go
// Contains LSP method handlers related to text document synchronization and
// language features (didOpen, didChange, didClose, completion, signatureHelp,
// hover, definition).
package scriptnav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// ============================================================================
// LSP Text Document Method Handlers
// ============================================================================

// handleDidOpen adds the opened file to the server's state and triggers diagnostics.
func (s *Server) handleDidOpen(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DidOpenTextDocumentParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	version := params.TextDocument.Version
	content := []byte(params.TextDocument.Text)
	openLogger := logger.With("uri", uri, "version", version, "size", len(content))
	openLogger.Info("Handling textDocument/didOpen")

	absPath, pathErr := ValidateAndGetFilePath(string(uri), openLogger)
	if pathErr != nil {
		openLogger.Error("Invalid URI in didOpen", "error", pathErr)
		s.sendShowMessage(MessageTypeError, fmt.Sprintf("Invalid document URI: %v", pathErr))
		return nil, nil
	}

	s.filesMu.Lock()
	s.files[uri] = &OpenFile{URI: uri, Path: absPath, Content: content, Version: version}
	s.filesMu.Unlock()

	go s.triggerDiagnostics(uri, version, content, absPath, openLogger)
	return nil, nil
}

// handleDidChange replaces the file content (Full sync only) and triggers diagnostics.
func (s *Server) handleDidChange(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DidChangeTextDocumentParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	version := params.TextDocument.Version
	changeLogger := logger.With("uri", uri, "new_version", version)

	if len(params.ContentChanges) == 0 {
		changeLogger.Warn("Received didChange notification with no content changes")
		return nil, nil
	}
	newContent := []byte(params.ContentChanges[len(params.ContentChanges)-1].Text)
	changeLogger.Info("Handling textDocument/didChange", "new_size", len(newContent))

	absPath, pathErr := ValidateAndGetFilePath(string(uri), changeLogger)
	if pathErr != nil {
		changeLogger.Error("Invalid URI in didChange", "error", pathErr)
		s.sendShowMessage(MessageTypeError, fmt.Sprintf("Invalid document URI: %v", pathErr))
		return nil, nil
	}

	s.filesMu.Lock()
	currentFile, exists := s.files[uri]
	updated := !exists || version > currentFile.Version
	if updated {
		s.files[uri] = &OpenFile{URI: uri, Path: absPath, Content: newContent, Version: version}
	} else {
		changeLogger.Warn("Ignoring out-of-order didChange notification", "received_version", version, "current_version", currentFile.Version)
	}
	s.filesMu.Unlock()

	if !updated {
		return nil, nil
	}
	s.navigator.InvalidateFile(absPath)
	changeLogger.Debug("Updated file state and dropped cached parse")

	go s.triggerDiagnostics(uri, version, newContent, absPath, changeLogger)
	return nil, nil
}

// handleDidClose removes the file from the server's state and clears its diagnostics.
func (s *Server) handleDidClose(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DidCloseTextDocumentParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	closeLogger := logger.With("uri", uri)
	closeLogger.Info("Handling textDocument/didClose")

	s.filesMu.Lock()
	file, ok := s.files[uri]
	delete(s.files, uri)
	s.filesMu.Unlock()

	s.publishDiagnostics(uri, nil, []LspDiagnostic{}, closeLogger)
	if ok {
		s.navigator.InvalidateFile(file.Path)
	}
	return nil, nil
}

// handleCompletion ranks the names bound in the document against the prefix
// before the cursor.
func (s *Server) handleCompletion(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params CompletionParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	lspPos := params.Position
	completionLogger := logger.With("uri", uri, "lsp_line", lspPos.Line, "lsp_char", lspPos.Character)
	completionLogger.Info("Handling textDocument/completion")

	file, err := s.openFile(uri)
	if err != nil {
		completionLogger.Warn("Completion request for unknown file")
		return nil, err
	}
	pos, posErr := LspPositionToPos(file.Content, lspPos)
	if posErr != nil {
		completionLogger.Error("Failed to convert LSP position", "error", posErr)
		return CompletionList{IsIncomplete: false, Items: []CompletionItem{}}, nil
	}

	completionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	completions, err := s.navigator.CompletionsAt(completionCtx, file.Path, file.Content, pos)
	if cancelled, rpcErr := requestCancelled(completionCtx, "Completion", completionLogger); cancelled {
		if rpcErr != nil {
			return nil, rpcErr
		}
		return CompletionList{IsIncomplete: true, Items: []CompletionItem{}}, nil
	}
	if err != nil {
		completionLogger.Error("Completion failed", "error", err)
		return CompletionList{IsIncomplete: false, Items: []CompletionItem{}}, nil
	}

	completionLogger.Info("Completion successful", "items", len(completions))
	return CompletionList{IsIncomplete: false, Items: completionItems(completions)}, nil
}

// handleSignatureHelp reports the call enclosing the cursor and the active
// argument.
func (s *Server) handleSignatureHelp(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params SignatureHelpParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	lspPos := params.Position
	sigLogger := logger.With("uri", uri, "lsp_line", lspPos.Line, "lsp_char", lspPos.Character)
	sigLogger.Info("Handling textDocument/signatureHelp")

	file, err := s.openFile(uri)
	if err != nil {
		sigLogger.Warn("Signature help request for unknown file")
		return nil, err
	}
	pos, posErr := LspPositionToPos(file.Content, lspPos)
	if posErr != nil {
		sigLogger.Error("Failed to convert LSP position", "error", posErr)
		return nil, nil
	}

	sigCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	sig, err := s.navigator.SignatureAt(sigCtx, file.Path, file.Content, pos)
	if cancelled, rpcErr := requestCancelled(sigCtx, "Signature help", sigLogger); cancelled {
		return nil, rpcErr
	}
	if err != nil {
		if errors.Is(err, ErrMalformedTree) {
			sigLogger.Error("Signature search failed", "error", err)
			return nil, nil
		}
		sigLogger.Warn("Signature search incomplete", "error", err)
	}
	if sig == nil {
		sigLogger.Debug("Cursor is not inside a call")
		return nil, nil
	}

	sigLogger.Info("Signature help generated", "callee", sig.Callee, "index", sig.Index, "definitions", len(sig.Definitions))
	return signatureHelpFromContext(sig), nil
}

// handleHover shows the signatures of the `def` statements for the name under
// the cursor.
func (s *Server) handleHover(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params HoverParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	lspPos := params.Position
	hoverLogger := logger.With("uri", uri, "lsp_line", lspPos.Line, "lsp_char", lspPos.Character)
	hoverLogger.Info("Handling textDocument/hover")

	file, err := s.openFile(uri)
	if err != nil {
		hoverLogger.Warn("Hover request for unknown file")
		return nil, err
	}
	pos, posErr := LspPositionToPos(file.Content, lspPos)
	if posErr != nil {
		hoverLogger.Error("Failed to convert LSP position", "error", posErr)
		return nil, nil
	}

	hoverCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	info, err := s.navigator.HoverAt(hoverCtx, file.Path, file.Content, pos)
	if cancelled, rpcErr := requestCancelled(hoverCtx, "Hover", hoverLogger); cancelled {
		return nil, rpcErr
	}
	if err != nil {
		hoverLogger.Warn("Hover search incomplete", "error", err)
	}
	if info == nil {
		hoverLogger.Debug("No hover content at cursor")
		return nil, nil
	}

	var hoverRange *LSPRange
	if rng, rangeErr := rangeToLSPRange(file.Content, info.Range); rangeErr == nil {
		hoverRange = &rng
	} else {
		hoverLogger.Warn("Could not determine range for hovered name", "error", rangeErr)
	}

	markupKind := MarkupKindPlainText
	if s.clientCaps.TextDocument != nil && s.clientCaps.TextDocument.Hover != nil {
		for _, kind := range s.clientCaps.TextDocument.Hover.ContentFormat {
			if kind == MarkupKindMarkdown {
				markupKind = MarkupKindMarkdown
				break
			}
		}
	}

	hoverLogger.Info("Hover information generated", "name", info.Name, "markup", markupKind)
	return HoverResult{
		Contents: MarkupContent{Kind: markupKind, Value: info.Text},
		Range:    hoverRange,
	}, nil
}

// handleDefinition returns the `def` statements matching the name under the cursor.
func (s *Server) handleDefinition(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, params DefinitionParams, logger *slog.Logger) (any, error) {
	uri := params.TextDocument.URI
	lspPos := params.Position
	defLogger := logger.With("uri", uri, "lsp_line", lspPos.Line, "lsp_char", lspPos.Character)
	defLogger.Info("Handling textDocument/definition")

	file, err := s.openFile(uri)
	if err != nil {
		defLogger.Warn("Definition request for unknown file")
		return nil, err
	}
	pos, posErr := LspPositionToPos(file.Content, lspPos)
	if posErr != nil {
		defLogger.Error("Failed to convert LSP position", "error", posErr)
		return nil, nil
	}

	defCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	defs, err := s.navigator.DefinitionsAt(defCtx, file.Path, file.Content, pos)
	if cancelled, rpcErr := requestCancelled(defCtx, "Definition", defLogger); cancelled {
		return nil, rpcErr
	}
	if err != nil {
		defLogger.Warn("Definition search incomplete", "error", err)
	}

	locations := []Location{}
	for _, d := range defs {
		content := file.Content
		if d.Path != file.Path {
			if content, err = os.ReadFile(d.Path); err != nil {
				defLogger.Warn("Cannot read definition file", "path", d.Path, "error", err)
				continue
			}
		}
		loc, locErr := definitionLocation(d, content)
		if locErr != nil {
			defLogger.Warn("Cannot convert definition range", "path", d.Path, "error", locErr)
			continue
		}
		locations = append(locations, loc)
	}
	defLogger.Info("Definition lookup finished", "locations", len(locations))
	return locations, nil
}

// requestCancelled reports whether ctx ended. A deadline is answered with an
// empty result (nil error); an explicit cancellation with RequestCancelled.
func requestCancelled(ctx context.Context, what string, logger *slog.Logger) (bool, error) {
	select {
	case <-ctx.Done():
	default:
		return false, nil
	}
	logger.Info(what+" request cancelled or timed out", "error", ctx.Err())
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true, nil
	}
	return true, &jsonrpc2.Error{Code: int64(JsonRpcRequestCancelled), Message: what + " request cancelled"}
}
