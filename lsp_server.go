// scriptnav/lsp_server.go
// Implements the Language Server Protocol (LSP) server loop, request routing,
// diagnostics publishing, metrics and request cancellation.
package scriptnav

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// ============================================================================
// LSP Server Implementation
// ============================================================================

// Server represents the LSP server instance.
type Server struct {
	conn           *jsonrpc2.Conn
	logger         *slog.Logger
	logLevel       *slog.LevelVar // optional; updated on configuration changes
	navigator      *Navigator
	files          map[DocumentURI]*OpenFile
	filesMu        sync.RWMutex
	config         Config
	clientCaps     ClientCapabilities
	serverInfo     *ServerInfo
	initParams     *InitializeParams
	requestTracker *RequestTracker
}

// OpenFile represents a file currently open in the client editor.
type OpenFile struct {
	URI     DocumentURI
	Path    string
	Content []byte
	Version int
}

// NewServer creates a new LSP server instance.
func NewServer(navigator *Navigator, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		logger:    logger,
		navigator: navigator,
		files:     make(map[DocumentURI]*OpenFile),
		config:    navigator.GetCurrentConfig(),
		serverInfo: &ServerInfo{
			Name:    "scriptnav LSP",
			Version: version,
		},
		requestTracker: NewRequestTracker(),
	}
	publishExpvarMetrics(s)
	return s
}

// SetLogLevelVar lets configuration changes adjust the level of the handler
// the server logger writes through.
func (s *Server) SetLogLevelVar(v *slog.LevelVar) { s.logLevel = v }

// Run starts the LSP server on r/w and blocks until the connection closes.
func (s *Server) Run(r io.Reader, w io.Writer) {
	s.logger.Info("Starting LSP server run loop")

	stream := &stdrwc{r: r, w: w}
	objectStream := jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{})
	handler := jsonrpc2.HandlerWithError(s.handle)

	s.conn = jsonrpc2.NewConn(context.Background(), objectStream, handler)
	s.logger.Info("JSON-RPC connection established")

	<-s.conn.DisconnectNotify()
	s.logger.Info("JSON-RPC connection closed")
}

// stdrwc is a simple ReadWriteCloser that wraps stdin/stdout without closing them.
type stdrwc struct {
	r io.Reader
	w io.Writer
}

func (s *stdrwc) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdrwc) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdrwc) Close() error                { return nil }

// handle routes incoming LSP requests/notifications to appropriate methods.
func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (result any, err error) {
	methodLogger := s.logger.With("method", req.Method, "is_notification", req.Notif)
	isRequest := !req.Notif
	if isRequest {
		methodLogger = methodLogger.With("req_id", req.ID)
	}
	methodLogger.Debug("Received request/notification")

	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			methodLogger.Error("Panic recovered in handler", "panic_value", r, "stack", stack)

			panicData, marshalErr := json.Marshal(fmt.Sprintf("Panic: %v", r))
			if marshalErr != nil {
				methodLogger.Error("Failed to marshal panic message for error data", "error", marshalErr)
				panicData = json.RawMessage(`"failed to marshal panic data"`)
			}
			rawPanicData := json.RawMessage(panicData)

			err = &jsonrpc2.Error{
				Code:    int64(JsonRpcInternalError),
				Message: fmt.Sprintf("Internal server error in method %s", req.Method),
				Data:    &rawPanicData,
			}
			result = nil
		}
	}()

	if isRequest {
		ctx = s.requestTracker.Add(req.ID, ctx)
		defer s.requestTracker.Remove(req.ID)
	}
	select {
	case <-ctx.Done():
		methodLogger.Warn("Request context cancelled before processing started", "error", ctx.Err())
		return nil, &jsonrpc2.Error{Code: int64(JsonRpcRequestCancelled), Message: "Request cancelled"}
	default:
	}

	unmarshalParams := func(target any) error {
		if req.Params == nil {
			return errors.New("params field is null")
		}
		return json.Unmarshal(*req.Params, target)
	}
	invalidParams := func(what string, err error) error {
		methodLogger.Error("Failed to unmarshal "+what+" params", "error", err)
		return &jsonrpc2.Error{Code: int64(JsonRpcInvalidParams), Message: fmt.Sprintf("Invalid %s params: %v", what, err)}
	}

	switch req.Method {
	case "initialize":
		var params InitializeParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("initialize", err)
		}
		return s.handleInitialize(ctx, conn, req, params, methodLogger)

	case "initialized":
		methodLogger.Info("Client initialized notification received")
		return nil, nil

	case "shutdown":
		return s.handleShutdown(ctx, conn, req, methodLogger)

	case "exit":
		return s.handleExit(ctx, conn, req, methodLogger)

	case "textDocument/didOpen":
		var params DidOpenTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didOpen params", "error", err)
			return nil, nil
		}
		return s.handleDidOpen(ctx, conn, req, params, methodLogger)

	case "textDocument/didChange":
		var params DidChangeTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didChange params", "error", err)
			return nil, nil
		}
		return s.handleDidChange(ctx, conn, req, params, methodLogger)

	case "textDocument/didClose":
		var params DidCloseTextDocumentParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didClose params", "error", err)
			return nil, nil
		}
		return s.handleDidClose(ctx, conn, req, params, methodLogger)

	case "textDocument/completion":
		var params CompletionParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("completion", err)
		}
		return s.handleCompletion(ctx, conn, req, params, methodLogger)

	case "textDocument/signatureHelp":
		var params SignatureHelpParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("signatureHelp", err)
		}
		return s.handleSignatureHelp(ctx, conn, req, params, methodLogger)

	case "textDocument/hover":
		var params HoverParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("hover", err)
		}
		return s.handleHover(ctx, conn, req, params, methodLogger)

	case "textDocument/definition":
		var params DefinitionParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("definition", err)
		}
		return s.handleDefinition(ctx, conn, req, params, methodLogger)

	case "workspace/didChangeConfiguration":
		var params DidChangeConfigurationParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal didChangeConfiguration params", "error", err)
			return nil, nil
		}
		return s.handleDidChangeConfiguration(ctx, conn, req, params, methodLogger)

	case "$/cancelRequest":
		var params CancelParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Error("Failed to unmarshal cancelRequest params", "error", err)
			return nil, nil
		}
		cancelID, ok := cancelRequestID(params.ID)
		if !ok {
			methodLogger.Warn("Could not determine type of cancel request ID", "id_value", params.ID, "id_type", fmt.Sprintf("%T", params.ID))
			return nil, nil
		}
		s.requestTracker.Cancel(cancelID)
		methodLogger.Info("Cancellation request processed", "cancelled_id", cancelID)
		return nil, nil

	default:
		methodLogger.Warn("Unhandled LSP method")
		return nil, &jsonrpc2.Error{Code: int64(JsonRpcMethodNotFound), Message: fmt.Sprintf("Method not supported: %s", req.Method)}
	}
}

// cancelRequestID converts the JSON id of a $/cancelRequest into a jsonrpc2.ID.
func cancelRequestID(v any) (jsonrpc2.ID, bool) {
	switch id := v.(type) {
	case float64:
		return jsonrpc2.ID{Num: uint64(id)}, true
	case string:
		return jsonrpc2.ID{Str: id, IsString: true}, true
	}
	return jsonrpc2.ID{}, false
}

// openFile returns the tracked state of uri.
func (s *Server) openFile(uri DocumentURI) (*OpenFile, error) {
	s.filesMu.RLock()
	defer s.filesMu.RUnlock()
	file, ok := s.files[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotOpen, uri)
	}
	return file, nil
}

// ============================================================================
// Notifications & Diagnostics
// ============================================================================

func (s *Server) sendShowMessage(msgType MessageType, message string) {
	if s.conn == nil {
		s.logger.Warn("Cannot send showMessage: connection is nil")
		return
	}
	params := ShowMessageParams{Type: msgType, Message: message}
	if err := s.conn.Notify(context.Background(), "window/showMessage", params); err != nil {
		s.logger.Error("Failed to send window/showMessage notification", "error", err, "message_type", msgType)
	} else {
		s.logger.Debug("Sent window/showMessage notification", "message_type", msgType)
	}
}

func (s *Server) publishDiagnostics(uri DocumentURI, version *int, diagnostics []LspDiagnostic, logger *slog.Logger) {
	if logger == nil {
		logger = s.logger
	}
	if s.conn == nil {
		logger.Warn("Cannot publish diagnostics: connection is nil", "uri", uri)
		return
	}
	params := PublishDiagnosticsParams{
		URI:         uri,
		Version:     version,
		Diagnostics: diagnostics,
	}
	if err := s.conn.Notify(context.Background(), "textDocument/publishDiagnostics", params); err != nil {
		logger.Error("Failed to send textDocument/publishDiagnostics notification", "error", err, "uri", uri, "diagnostic_count", len(diagnostics))
	} else {
		logger.Info("Published diagnostics", "uri", uri, "diagnostic_count", len(diagnostics), "version", version)
	}
}

// triggerDiagnostics analyses the given content and publishes the result.
func (s *Server) triggerDiagnostics(uri DocumentURI, version int, content []byte, absPath string, logger *slog.Logger) {
	if logger == nil {
		logger = s.logger
	}
	diagLogger := logger.With("absPath", absPath, "operation", "triggerDiagnostics")
	diagLogger.Debug("Triggering background analysis for diagnostics")

	analysisCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	diags, err := s.navigator.Diagnostics(analysisCtx, absPath, content)
	if err != nil {
		diagLogger.Warn("Diagnostics analysis failed", "error", err)
	}
	s.publishDiagnostics(uri, &version, toLspDiagnostics(content, diags, diagLogger), diagLogger)
}

// toLspDiagnostics converts internal diagnostics, skipping any whose range
// cannot be mapped onto content.
func toLspDiagnostics(content []byte, diags []Diagnostic, logger *slog.Logger) []LspDiagnostic {
	out := []LspDiagnostic{}
	for _, diag := range diags {
		lspRange, err := rangeToLSPRange(content, diag.Range)
		if err != nil {
			logger.Warn("Failed to convert diagnostic range, skipping diagnostic", "range", diag.Range, "error", err, "message", diag.Message)
			continue
		}
		if lspRange.End.Line < lspRange.Start.Line ||
			(lspRange.End.Line == lspRange.Start.Line && lspRange.End.Character < lspRange.Start.Character) {
			lspRange.End = lspRange.Start
		}
		out = append(out, LspDiagnostic{
			Range:    lspRange,
			Severity: mapInternalSeverityToLSP(diag.Severity),
			Code:     diag.Code,
			Source:   diag.Source,
			Message:  diag.Message,
		})
	}
	return out
}

// mapInternalSeverityToLSP maps internal severity levels to LSP severity levels.
func mapInternalSeverityToLSP(internalSeverity DiagnosticSeverity) LspDiagnosticSeverity {
	switch internalSeverity {
	case SeverityError:
		return LspSeverityError
	case SeverityWarning:
		return LspSeverityWarning
	case SeverityInfo:
		return LspSeverityInfo
	case SeverityHint:
		return LspSeverityHint
	default:
		slog.Warn("Unknown internal diagnostic severity, defaulting to Error", "internal_severity", internalSeverity)
		return LspSeverityError
	}
}

// ============================================================================
// Metrics Publishing
// ============================================================================

var publishMetricsOnce sync.Once

// publishExpvarMetrics registers the server gauges. expvar names are global,
// so only the first server in a process publishes.
func publishExpvarMetrics(s *Server) {
	publishMetricsOnce.Do(func() {
		startTime := time.Now()
		expvar.NewString("serverInfo.name").Set(s.serverInfo.Name)
		expvar.NewString("serverInfo.version").Set(s.serverInfo.Version)
		expvar.NewString("serverStartTime").Set(startTime.Format(time.RFC3339))
		expvar.Publish("goroutines", expvar.Func(func() any { return runtime.NumGoroutine() }))
		expvar.Publish("memory.allocBytes", expvar.Func(func() any {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return m.Alloc
		}))
		expvar.Publish("lsp.openFiles", expvar.Func(func() any {
			s.filesMu.RLock()
			defer s.filesMu.RUnlock()
			return len(s.files)
		}))
		expvar.Publish("lsp.pendingRequests", expvar.Func(func() any { return s.requestTracker.Count() }))

		cacheMetric := func(read func(hits, misses, costAdded, keysEvicted uint64) uint64) expvar.Func {
			return func() any {
				m := s.navigator.CacheMetrics()
				if m == nil {
					return 0
				}
				return read(m.Hits(), m.Misses(), m.CostAdded(), m.KeysEvicted())
			}
		}
		expvar.Publish("cache.memory.hits", cacheMetric(func(h, _, _, _ uint64) uint64 { return h }))
		expvar.Publish("cache.memory.misses", cacheMetric(func(_, m, _, _ uint64) uint64 { return m }))
		expvar.Publish("cache.memory.costAdded", cacheMetric(func(_, _, c, _ uint64) uint64 { return c }))
		expvar.Publish("cache.memory.keysEvicted", cacheMetric(func(_, _, _, k uint64) uint64 { return k }))

		expvar.Publish("index.entries", expvar.Func(func() any {
			ix := s.navigator.Index()
			if ix == nil {
				return 0
			}
			entries, _, err := ix.Stats()
			if err != nil {
				return 0
			}
			return entries
		}))
		s.logger.Info("Expvar metrics published")
	})
}

// ============================================================================
// Request Cancellation Tracker
// ============================================================================

// RequestTracker manages cancellation contexts for ongoing LSP requests.
type RequestTracker struct {
	mu       sync.Mutex
	requests map[jsonrpc2.ID]context.CancelFunc
}

// NewRequestTracker creates a new tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		requests: make(map[jsonrpc2.ID]context.CancelFunc),
	}
}

// Add registers a request ID and returns the context the request must run
// under; Cancel on the same ID cancels it.
func (rt *RequestTracker) Add(id jsonrpc2.ID, ctx context.Context) context.Context {
	reqCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	if prev, ok := rt.requests[id]; ok {
		prev()
	}
	rt.requests[id] = cancel
	rt.mu.Unlock()
	return reqCtx
}

// Remove deregisters a request ID and releases its context.
func (rt *RequestTracker) Remove(id jsonrpc2.ID) {
	rt.mu.Lock()
	cancel, found := rt.requests[id]
	delete(rt.requests, id)
	rt.mu.Unlock()
	if found {
		cancel()
	}
}

// Cancel finds the cancel function for a request ID and calls it.
func (rt *RequestTracker) Cancel(id jsonrpc2.ID) {
	rt.mu.Lock()
	cancel, found := rt.requests[id]
	if found {
		delete(rt.requests, id)
	}
	rt.mu.Unlock()

	if found {
		slog.Debug("Calling cancel function for request", "id", id)
		cancel()
	} else {
		slog.Debug("Cancel function not found for request ID", "id", id)
	}
}

// Count returns the number of currently tracked requests.
func (rt *RequestTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.requests)
}
