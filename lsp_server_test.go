// scriptnav/lsp_server_test.go
package scriptnav

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/jsonrpc2"
)

// lspClient is the editor side of an in-process server connection.
type lspClient struct {
	conn          *jsonrpc2.Conn
	notifications chan *jsonrpc2.Request
}

func startTestServer(t *testing.T) (*lspClient, *Server) {
	t.Helper()
	srv := NewServer(newTestNavigator(t, nil), newTestLogger(t), "test")
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		srv.Run(serverSide, serverSide)
		close(done)
	}()

	c := &lspClient{notifications: make(chan *jsonrpc2.Request, 16)}
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		c.notifications <- req
		return nil, nil
	})
	c.conn = jsonrpc2.NewConn(context.Background(), jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}), handler)
	t.Cleanup(func() {
		c.conn.Close()
		serverSide.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return c, srv
}

func (c *lspClient) call(t *testing.T, method string, params, result any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.conn.Call(ctx, method, params, result)
}

func (c *lspClient) notify(t *testing.T, method string, params any) {
	t.Helper()
	if err := c.conn.Notify(context.Background(), method, params); err != nil {
		t.Fatalf("notify %s: %v", method, err)
	}
}

// waitDiagnostics returns the next publishDiagnostics notification for uri.
func (c *lspClient) waitDiagnostics(t *testing.T, uri DocumentURI) PublishDiagnosticsParams {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case req := <-c.notifications:
			if req.Method != "textDocument/publishDiagnostics" || req.Params == nil {
				continue
			}
			var params PublishDiagnosticsParams
			if err := json.Unmarshal(*req.Params, &params); err != nil {
				t.Fatalf("decode diagnostics: %v", err)
			}
			if params.URI == uri {
				return params
			}
		case <-timeout:
			t.Fatalf("no diagnostics published for %s", uri)
		}
	}
}

func TestServerSession(t *testing.T) {
	client, srv := startTestServer(t)

	var initResult InitializeResult
	if err := client.call(t, "initialize", InitializeParams{ProcessID: 1, ClientInfo: &ClientInfo{Name: "test-editor"}}, &initResult); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if initResult.ServerInfo == nil || initResult.ServerInfo.Name != "scriptnav LSP" {
		t.Errorf("server info = %+v", initResult.ServerInfo)
	}
	sigOpts := initResult.Capabilities.SignatureHelpProvider
	if sigOpts == nil || !cmp.Equal(sigOpts.TriggerCharacters, []string{"(", ","}) {
		t.Errorf("signature help trigger characters = %+v", sigOpts)
	}
	if !initResult.Capabilities.HoverProvider {
		t.Error("hover provider not advertised")
	}
	client.notify(t, "initialized", struct{}{})

	path := filepath.Join(t.TempDir(), "greet.py")
	uri := DocumentURI(PathToURI(path))
	src := "def greet(name, greeting=\"hi\"):\n    return greeting + name\n\ngreet(\"bob\", "
	client.notify(t, "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "python", Version: 1, Text: src},
	})
	diags := client.waitDiagnostics(t, uri)
	if len(diags.Diagnostics) != 1 || diags.Diagnostics[0].Code != "syntax" {
		t.Errorf("diagnostics = %+v, want one unclosed bracket", diags.Diagnostics)
	}
	if diags.Version == nil || *diags.Version != 1 {
		t.Errorf("diagnostics version = %v, want 1", diags.Version)
	}

	t.Run("signatureHelp", func(t *testing.T) {
		var help SignatureHelp
		err := client.call(t, "textDocument/signatureHelp", SignatureHelpParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     LSPPosition{Line: 3, Character: 13},
		}, &help)
		if err != nil {
			t.Fatalf("signatureHelp: %v", err)
		}
		want := SignatureHelp{
			Signatures: []SignatureInformation{{
				Label:         "greet(name, greeting=…)",
				Documentation: path,
				Parameters:    []ParameterInformation{{Label: "name"}, {Label: "greeting=…"}},
			}},
			ActiveParameter: 1,
		}
		if diff := cmp.Diff(want, help); diff != "" {
			t.Errorf("signature help mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("completion", func(t *testing.T) {
		var list CompletionList
		err := client.call(t, "textDocument/completion", CompletionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     LSPPosition{Line: 3, Character: 2},
		}, &list)
		if err != nil {
			t.Fatalf("completion: %v", err)
		}
		if len(list.Items) != 1 || list.Items[0].Label != "greet" || list.Items[0].Kind != CompletionItemKindFunction {
			t.Errorf("completion items = %+v, want greet", list.Items)
		}
	})

	t.Run("definition", func(t *testing.T) {
		var locs []Location
		err := client.call(t, "textDocument/definition", DefinitionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     LSPPosition{Line: 3, Character: 1},
		}, &locs)
		if err != nil {
			t.Fatalf("definition: %v", err)
		}
		want := []Location{{URI: uri, Range: LSPRange{Start: LSPPosition{0, 4}, End: LSPPosition{0, 9}}}}
		if diff := cmp.Diff(want, locs); diff != "" {
			t.Errorf("definition mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		var list CompletionList
		err := client.call(t, "textDocument/completion", CompletionParams{
			TextDocument: TextDocumentIdentifier{URI: "file:///nowhere.py"},
		}, &list)
		if err == nil {
			t.Error("completion on an unopened document succeeded")
		}
	})

	t.Run("hover", func(t *testing.T) {
		var hover HoverResult
		err := client.call(t, "textDocument/hover", HoverParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     LSPPosition{Line: 3, Character: 1},
		}, &hover)
		if err != nil {
			t.Fatalf("hover: %v", err)
		}
		want := HoverResult{
			Contents: MarkupContent{Kind: MarkupKindPlainText, Value: "```python\ndef greet(name, greeting=…)\n```"},
			Range:    &LSPRange{Start: LSPPosition{3, 0}, End: LSPPosition{3, 5}},
		}
		if diff := cmp.Diff(want, hover); diff != "" {
			t.Errorf("hover mismatch (-want +got):\n%s", diff)
		}

		var empty *HoverResult
		err = client.call(t, "textDocument/hover", HoverParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     LSPPosition{Line: 3, Character: 8},
		}, &empty)
		if err != nil || empty != nil {
			t.Errorf("hover over a string = %+v, %v; want null", empty, err)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		err := client.call(t, "textDocument/formatting", TextDocumentPositionParams{}, nil)
		var rpcErr *jsonrpc2.Error
		if !errors.As(err, &rpcErr) || rpcErr.Code != int64(JsonRpcMethodNotFound) {
			t.Errorf("formatting error = %v, want MethodNotFound", err)
		}
	})

	t.Run("didChange and didClose", func(t *testing.T) {
		changed := "def greet(name):\n    pass\n"
		client.notify(t, "textDocument/didChange", DidChangeTextDocumentParams{
			TextDocument:   VersionedTextDocumentIdentifier{TextDocumentIdentifier: TextDocumentIdentifier{URI: uri}, Version: 2},
			ContentChanges: []TextDocumentContentChangeEvent{{Text: changed}},
		})
		if diags := client.waitDiagnostics(t, uri); len(diags.Diagnostics) != 0 {
			t.Errorf("diagnostics after fix = %+v, want none", diags.Diagnostics)
		}

		client.notify(t, "textDocument/didChange", DidChangeTextDocumentParams{
			TextDocument:   VersionedTextDocumentIdentifier{TextDocumentIdentifier: TextDocumentIdentifier{URI: uri}, Version: 1},
			ContentChanges: []TextDocumentContentChangeEvent{{Text: "stale("}},
		})
		client.notify(t, "textDocument/didClose", DidCloseTextDocumentParams{TextDocument: TextDocumentIdentifier{URI: uri}})
		if diags := client.waitDiagnostics(t, uri); len(diags.Diagnostics) != 0 {
			t.Errorf("diagnostics after close = %+v, want cleared", diags.Diagnostics)
		}
		if _, err := srv.openFile(uri); !errors.Is(err, ErrDocumentNotOpen) {
			t.Errorf("document still tracked after didClose: %v", err)
		}
	})

	t.Run("didChangeConfiguration", func(t *testing.T) {
		client.notify(t, "workspace/didChangeConfiguration", DidChangeConfigurationParams{
			Settings: json.RawMessage(`{"scriptnav": {"max_completions": 7}}`),
		})
		// Round-trip a request so the notification has been handled.
		if err := client.call(t, "shutdown", nil, nil); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
		if got := srv.navigator.GetCurrentConfig().MaxCompletions; got != 7 {
			t.Errorf("max_completions = %d, want 7", got)
		}
	})
}

func TestRequestTracker(t *testing.T) {
	rt := NewRequestTracker()
	id := jsonrpc2.ID{Num: 7}

	ctx := rt.Add(id, context.Background())
	if rt.Count() != 1 {
		t.Fatalf("Count = %d, want 1", rt.Count())
	}
	rt.Cancel(id)
	select {
	case <-ctx.Done():
	default:
		t.Error("Cancel did not cancel the request context")
	}
	if rt.Count() != 0 {
		t.Errorf("Count after Cancel = %d, want 0", rt.Count())
	}

	first := rt.Add(id, context.Background())
	second := rt.Add(id, context.Background())
	if first.Err() == nil {
		t.Error("re-adding an id should cancel the previous context")
	}
	rt.Remove(id)
	if second.Err() == nil {
		t.Error("Remove should release the context")
	}
	rt.Cancel(jsonrpc2.ID{Str: "missing", IsString: true})
	if rt.Count() != 0 {
		t.Errorf("Count = %d, want 0", rt.Count())
	}
}

func TestCancelRequestID(t *testing.T) {
	tests := []struct {
		raw    string
		want   jsonrpc2.ID
		wantOK bool
	}{
		{`{"id": 42}`, jsonrpc2.ID{Num: 42}, true},
		{`{"id": "abc"}`, jsonrpc2.ID{Str: "abc", IsString: true}, true},
		{`{"id": null}`, jsonrpc2.ID{}, false},
	}
	for _, tt := range tests {
		var params CancelParams
		if err := json.Unmarshal([]byte(tt.raw), &params); err != nil {
			t.Fatalf("decode %s: %v", tt.raw, err)
		}
		got, ok := cancelRequestID(params.ID)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("cancelRequestID(%s) = %+v, %v; want %+v, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSettingsFileConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    FileConfig
		wantErr bool
	}{
		{"nested", `{"scriptnav": {"log_level": "debug"}}`, FileConfig{LogLevel: ptr("debug")}, false},
		{"flat", `{"max_completions": 3}`, FileConfig{MaxCompletions: ptr(3)}, false},
		{"unrelated", `{"editor": {"tabSize": 4}}`, FileConfig{}, false},
		{"malformed", `{"log_level": 5}`, FileConfig{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := settingsFileConfig(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrConfig) {
					t.Errorf("err = %v, want ErrConfig", err)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FileConfig mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSignatureHelpFromContext(t *testing.T) {
	if signatureHelpFromContext(nil) != nil {
		t.Error("nil context should give nil help")
	}
	help := signatureHelpFromContext(&SignatureContext{Callee: "obj.run", Index: 2})
	want := &SignatureHelp{Signatures: []SignatureInformation{{Label: "obj.run(…)"}}, ActiveParameter: 2}
	if diff := cmp.Diff(want, help); diff != "" {
		t.Errorf("fallback help mismatch (-want +got):\n%s", diff)
	}
}

func TestCompletionItems(t *testing.T) {
	items := completionItems([]Completion{
		{Label: "beta", Kind: CompletionVariable},
		{Label: "alpha", Kind: CompletionModule},
	})
	want := []CompletionItem{
		{Label: "beta", Kind: CompletionItemKindVariable, Detail: "variable", SortText: "00000", InsertTextFormat: PlainTextFormat, InsertText: "beta"},
		{Label: "alpha", Kind: CompletionItemKindModule, Detail: "module", SortText: "00001", InsertTextFormat: PlainTextFormat, InsertText: "alpha"},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestToLspDiagnostics(t *testing.T) {
	content := []byte("é = f(\n")
	diags := []Diagnostic{
		{Range: Range{Start: Pos{0, 5}, End: Pos{0, 6}}, Severity: SeverityWarning, Code: "syntax", Source: "scriptnav", Message: "unclosed bracket"},
		{Range: Range{Start: Pos{0, 3}, End: Pos{0, 2}}, Severity: SeverityError, Code: "E2"},
		{Range: Range{Start: Pos{5, 0}, End: Pos{5, 1}}, Severity: SeverityHint},
	}
	got := toLspDiagnostics(content, diags, newTestLogger(t))
	want := []LspDiagnostic{
		{Range: LSPRange{Start: LSPPosition{0, 4}, End: LSPPosition{0, 5}}, Severity: LspSeverityWarning, Code: "syntax", Source: "scriptnav", Message: "unclosed bracket"},
		{Range: LSPRange{Start: LSPPosition{0, 2}, End: LSPPosition{0, 2}}, Severity: LspSeverityError, Code: "E2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}
