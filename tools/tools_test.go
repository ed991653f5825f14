package tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m4xw311/tinker/config"
	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/logging"
)

type stubTool struct {
	name   string
	params []Param
	fn     func(args map[string]interface{}) Result
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Params() []Param     { return s.params }
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	return s.fn(args)
}

func echoTool(name string, params []Param) *stubTool {
	return &stubTool{name: name, params: params, fn: func(args map[string]interface{}) Result {
		return Ok(args)
	}}
}

func testRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	cfg := config.Default()
	cfg.WebSearch.Enabled = false
	cfg.Shell.Timeout = 2 * time.Second
	r, err := NewBuiltinRegistry(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewBuiltinRegistry failed: %v", err)
	}
	return r
}

func TestBuiltinRegistryNames(t *testing.T) {
	r := testRegistry(t)
	want := []string{
		"create_file", "create_folder", "execute_shell", "install_deps",
		"list_folder_contents", "modify_file", "read_file", "rename_folder",
	}
	got := r.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, got)
	}

	cfg := config.Default()
	withSearch, err := NewBuiltinRegistry(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewBuiltinRegistry failed: %v", err)
	}
	if _, ok := withSearch.GetTool("web_search"); !ok {
		t.Errorf("Expected web_search when enabled")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewToolRegistry(logging.Discard())
	if err := r.Register(echoTool("a", nil)); err != nil {
		t.Fatalf("First register failed: %v", err)
	}
	err := r.Register(echoTool("a", nil))
	if !errors.Is(err, errors.ErrDuplicateCapability) {
		t.Errorf("Expected ErrDuplicateCapability, got %v", err)
	}
}

func TestInvokeUnknownCapability(t *testing.T) {
	r := NewToolRegistry(logging.Discard())
	res := r.Invoke(context.Background(), "nope", nil)
	if !res.Failed || !errors.Is(res.Kind, errors.ErrCapabilityNotFound) {
		t.Fatalf("Expected not-found failure, got %+v", res)
	}
	if res.String() != "Error: unknown capability: nope" {
		t.Errorf("Unexpected rendering %q", res.String())
	}
}

func TestInvokeBindsArguments(t *testing.T) {
	params := []Param{
		{Name: "path", Type: ParamString, Aliases: []string{"file_path"}},
		{Name: "count", Type: ParamNumber, Default: 5},
		{Name: "force", Type: ParamBool, Optional: true},
	}
	r := NewToolRegistry(logging.Discard())
	_ = r.Register(echoTool("echo", params))

	testCases := []struct {
		name       string
		args       map[string]interface{}
		wantFailed bool
		want       map[string]interface{}
	}{
		{
			name: "CanonicalNames",
			args: map[string]interface{}{"path": "a.txt", "count": 2.0, "force": true},
			want: map[string]interface{}{"path": "a.txt", "count": 2.0, "force": true},
		},
		{
			name: "AliasAndDefault",
			args: map[string]interface{}{"file_path": "b.txt"},
			want: map[string]interface{}{"path": "b.txt", "count": 5},
		},
		{
			name: "StringCoercion",
			args: map[string]interface{}{"path": "c", "count": "3", "force": "true"},
			want: map[string]interface{}{"path": "c", "count": 3.0, "force": true},
		},
		{
			name: "ExtraArgumentsDropped",
			args: map[string]interface{}{"path": "d", "bogus": 1},
			want: map[string]interface{}{"path": "d", "count": 5},
		},
		{
			name:       "MissingRequired",
			args:       map[string]interface{}{"count": 1.0},
			wantFailed: true,
		},
		{
			name:       "WrongType",
			args:       map[string]interface{}{"path": 12.0},
			wantFailed: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Invoke(context.Background(), "echo", tc.args)
			if tc.wantFailed {
				if !res.Failed || !errors.Is(res.Kind, errors.ErrCapabilityArgumentInvalid) {
					t.Fatalf("Expected argument failure, got %+v", res)
				}
				return
			}
			if res.Failed {
				t.Fatalf("Unexpected failure: %s", res.Reason)
			}
			got := res.Value.(map[string]interface{})
			if len(got) != len(tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, got)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("arg %s: expected %v (%T), got %v (%T)", k, v, v, got[k], got[k])
				}
			}
		})
	}
}

func TestInvokeNilParamsPassesArgsThrough(t *testing.T) {
	r := NewToolRegistry(logging.Discard())
	_ = r.Register(echoTool("srv.tool", nil))
	res := r.Invoke(context.Background(), "srv.tool", map[string]interface{}{"anything": "goes"})
	got := res.Value.(map[string]interface{})
	if got["anything"] != "goes" {
		t.Errorf("Expected passthrough args, got %v", got)
	}
}

// paramsPanicTool fails while describing its parameters, before Execute.
type paramsPanicTool struct{ stubTool }

func (p *paramsPanicTool) Params() []Param { panic("bad params") }

func TestInvokeRecoversPanic(t *testing.T) {
	r := NewToolRegistry(logging.Discard())
	_ = r.Register(&stubTool{name: "boom", fn: func(map[string]interface{}) Result {
		panic("kaboom")
	}})
	_ = r.Register(&paramsPanicTool{stubTool{name: "bad_params"}})

	testCases := []struct {
		name string
		tool string
		want string
	}{
		{"Execute", "boom", "kaboom"},
		{"Params", "bad_params", "bad params"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Invoke(context.Background(), tc.tool, nil)
			if !res.Failed || !errors.Is(res.Kind, errors.ErrCapabilityExecutionFailed) {
				t.Fatalf("Expected execution failure, got %+v", res)
			}
			if !strings.Contains(res.Reason, tc.want) {
				t.Errorf("Expected panic value in reason, got %q", res.Reason)
			}
		})
	}
}

func TestResultString(t *testing.T) {
	testCases := []struct {
		name string
		res  Result
		want string
	}{
		{"Nil", Ok(nil), ""},
		{"String", Ok("text"), "text"},
		{"True", Ok(true), "true"},
		{"False", Ok(false), "false"},
		{"Number", Ok(3), "3"},
		{"Map", Ok(map[string]int{"a": 1}), `{"a":1}`},
		{"Failure", Failure(errors.ErrCapabilityExecutionFailed, "bad"), "Error: bad"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.res.String(); got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDefinitionJSONSchema(t *testing.T) {
	d := Definition{Name: "x", Params: []Param{
		{Name: "path", Type: ParamString},
		{Name: "content", Type: ParamString, Default: ""},
	}}
	schema := d.JSONSchema()
	required := schema["required"].([]string)
	if len(required) != 1 || required[0] != "path" {
		t.Errorf("Expected only path required, got %v", required)
	}
	props := schema["properties"].(map[string]interface{})
	if _, ok := props["content"].(map[string]interface{})["default"]; !ok {
		t.Errorf("Expected default on content")
	}
}

func TestGetActiveTools(t *testing.T) {
	r := NewToolRegistry(logging.Discard())
	for _, name := range []string{"read_file", "create_file", "execute_shell", "gopls.definition", "gopls.references"} {
		_ = r.Register(echoTool(name, nil))
	}

	testCases := []struct {
		name    string
		tools   []string
		want    []string
		wantErr bool
	}{
		{"All", []string{"*"}, []string{"create_file", "execute_shell", "gopls.definition", "gopls.references", "read_file"}, false},
		{"Suffix", []string{"*_file"}, []string{"create_file", "read_file"}, false},
		{"MCPServer", []string{"gopls.*"}, []string{"gopls.definition", "gopls.references"}, false},
		{"Literal", []string{"execute_shell"}, []string{"execute_shell"}, false},
		{"UnknownLiteral", []string{"nope"}, nil, true},
		{"BadPattern", []string{"[a-"}, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			active, err := r.GetActiveTools(&config.Toolset{Name: tc.name, Tools: tc.tools})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got tools %v", active.Names())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if strings.Join(active.Names(), ",") != strings.Join(tc.want, ",") {
				t.Errorf("Expected %v, got %v", tc.want, active.Names())
			}
		})
	}
}

func TestFilesystemTools(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "x.txt")

	if res := r.Invoke(ctx, "create_file", map[string]interface{}{"path": file, "content": "hello"}); res.Value != true {
		t.Fatalf("create_file: %+v", res)
	}
	if res := r.Invoke(ctx, "read_file", map[string]interface{}{"path": file}); res.Value != "hello" {
		t.Errorf("read_file: %+v", res)
	}
	if res := r.Invoke(ctx, "modify_file", map[string]interface{}{"file_path": file, "content": "bye"}); res.Value != true {
		t.Fatalf("modify_file: %+v", res)
	}
	data, _ := os.ReadFile(file)
	if string(data) != "bye" {
		t.Errorf("Expected modified content, got %q", data)
	}

	nested := filepath.Join(dir, "a", "b")
	if res := r.Invoke(ctx, "create_folder", map[string]interface{}{"path": nested}); res.Value != true {
		t.Fatalf("create_folder: %+v", res)
	}
	if res := r.Invoke(ctx, "create_folder", map[string]interface{}{"path": nested}); res.Value != true {
		t.Errorf("create_folder on existing folder should succeed: %+v", res)
	}
	moved := filepath.Join(dir, "c")
	if res := r.Invoke(ctx, "rename_folder", map[string]interface{}{"old_path": filepath.Join(dir, "a"), "new_path": moved}); res.Value != true {
		t.Fatalf("rename_folder: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(moved, "b")); err != nil {
		t.Errorf("Expected moved tree: %v", err)
	}

	res := r.Invoke(ctx, "list_folder_contents", map[string]interface{}{"path": dir})
	if res.Value != "c\nx.txt" {
		t.Errorf("Unexpected listing %q", res.Value)
	}
}

func TestFilesystemToolErrors(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "missing")

	res := r.Invoke(ctx, "list_folder_contents", map[string]interface{}{"path": missing})
	if res.Failed || !strings.HasPrefix(res.String(), "Error listing folder:") {
		t.Errorf("Expected error text as value, got %+v", res)
	}
	res = r.Invoke(ctx, "read_file", map[string]interface{}{"path": missing})
	if res.Failed || !strings.HasPrefix(res.String(), "Error reading file:") {
		t.Errorf("Expected error text as value, got %+v", res)
	}
	res = r.Invoke(ctx, "rename_folder", map[string]interface{}{"old": missing, "new": missing + "2"})
	if res.Failed || res.Value != false {
		t.Errorf("Expected false, got %+v", res)
	}
	res = r.Invoke(ctx, "create_file", map[string]interface{}{"path": filepath.Join(missing, "f.txt")})
	if res.Failed || res.Value != false {
		t.Errorf("Expected false, got %+v", res)
	}
}

func TestExecuteShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX sh")
	}
	r := testRegistry(t)
	ctx := context.Background()

	res := r.Invoke(ctx, "execute_shell", map[string]interface{}{"command": "echo hi"})
	if res.Value != "hi\n" {
		t.Errorf("Expected %q, got %+v", "hi\n", res)
	}

	start := time.Now()
	res = r.Invoke(ctx, "execute_shell", map[string]interface{}{"command": "echo started; sleep 15"})
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("execute_shell blocked for %s", elapsed)
	}
	out := res.String()
	if !strings.HasPrefix(out, "started\n") {
		t.Errorf("Expected partial output first, got %q", out)
	}
	if !strings.Contains(out, "[Command took longer than 2 seconds. Analysis of partial output:]") {
		t.Errorf("Expected timeout analysis, got %q", out)
	}
}

func TestInstallDeps(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs POSIX tools")
	}
	cfg := config.Default()
	cfg.WebSearch.Enabled = false
	cfg.Install.Command = "echo installing"

	r, err := NewBuiltinRegistry(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewBuiltinRegistry failed: %v", err)
	}
	if res := r.Invoke(context.Background(), "install_deps", nil); res.Value != true {
		t.Errorf("Expected success with default package, got %+v", res)
	}

	cfg.Install.Command = "false"
	r, _ = NewBuiltinRegistry(cfg, logging.Discard())
	if res := r.Invoke(context.Background(), "install_deps", map[string]interface{}{"package_name": "x"}); res.Value != false {
		t.Errorf("Expected false for failing installer, got %+v", res)
	}

	cfg.Install.Command = "/no/such/installer"
	r, _ = NewBuiltinRegistry(cfg, logging.Discard())
	if res := r.Invoke(context.Background(), "install_deps", nil); res.Value != false {
		t.Errorf("Expected false for missing installer, got %+v", res)
	}
}

const searchPage = `<html><body>
<div class="result">
<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The <b>Go</b> Documentation</a>
<a class="result__snippet" href="x">Learn <b>Go</b> &amp; more.</a>
</div>
<div class="result">
<a rel="nofollow" class="result__a" href="https://pkg.go.dev/">Go Packages</a>
<a class="result__snippet" href="y">Package index.</a>
</div>
</body></html>`

func TestWebSearch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("q") != "golang docs" {
			t.Errorf("Unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") != "tinker-test" {
			t.Errorf("Unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		io.WriteString(w, searchPage)
	}))
	defer srv.Close()

	tool := NewWebSearchTool(config.WebSearch{
		Enabled:     true,
		MaxResults:  5,
		CacheTTL:    time.Minute,
		UserAgent:   "tinker-test",
		EndpointURL: srv.URL,
	})
	r := NewToolRegistry(logging.Discard())
	_ = r.Register(tool)

	res := r.Invoke(context.Background(), "web_search", map[string]interface{}{"query": "golang docs"})
	if res.Failed {
		t.Fatalf("Unexpected failure: %s", res.Reason)
	}
	out := res.String()
	for _, want := range []string{
		"Search results for: golang docs",
		"1. The Go Documentation\n   https://go.dev/doc/\n   Learn Go & more.",
		"2. Go Packages\n   https://pkg.go.dev/",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}

	again := r.Invoke(context.Background(), "web_search", map[string]interface{}{"query": "golang docs"})
	if again.String() != out {
		t.Errorf("Expected cached result")
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one upstream request, got %d", hits.Load())
	}
}

func TestWebSearchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := NewWebSearchTool(config.WebSearch{EndpointURL: srv.URL, RatePerMin: 1})
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]interface{}{"query": "  "})
	if !res.Failed || !errors.Is(res.Kind, errors.ErrCapabilityArgumentInvalid) {
		t.Errorf("Expected argument failure, got %+v", res)
	}

	res = tool.Execute(ctx, map[string]interface{}{"query": "a"})
	if !res.Failed || !strings.Contains(res.Reason, "503") {
		t.Errorf("Expected provider failure, got %+v", res)
	}

	res = tool.Execute(ctx, map[string]interface{}{"query": "b"})
	if !res.Failed || !strings.Contains(res.Reason, "rate limit") {
		t.Errorf("Expected rate limit failure, got %+v", res)
	}
}

func TestExtractResultsEmpty(t *testing.T) {
	if got := extractResults("<html></html>", 5); len(got) != 0 {
		t.Errorf("Expected no results, got %v", got)
	}
	if got := formatSearchResults("q", nil); got != "No results found for: q" {
		t.Errorf("Unexpected %q", got)
	}
}
