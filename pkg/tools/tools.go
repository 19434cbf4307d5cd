// Package tools provides the named callables exposed to conversational
// roles: file search, plot analysis, calculator, notebook access, web query,
// and the code runner.
//
// All tools return text. Failures are returned as "Error: ..." strings, not
// Go errors; callers check for the literal "Error" prefix. The registry
// records invocation counts per tool so controllers can verify a role
// actually gathered evidence instead of sniffing transcript text.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"clockwork/pkg/logx"
)

// ErrorPrefix marks a tool result as a failure by convention.
const ErrorPrefix = "Error"

// Errorf formats a conventional tool error result.
func Errorf(format string, args ...any) string {
	return ErrorPrefix + ": " + fmt.Sprintf(format, args...)
}

// IsError reports whether a tool result follows the error convention.
func IsError(result string) bool {
	return strings.HasPrefix(result, ErrorPrefix)
}

// Property describes a single input parameter.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema describes a tool's arguments as a JSON-schema object.
type InputSchema struct {
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties,omitempty"`
	Required   []string             `json:"required,omitempty"`
}

// Definition contains tool metadata for discovery and for the LLM backends.
type Definition struct {
	Name        string
	Description string
	InputSchema InputSchema
}

// Tool is a named callable exposed to conversational roles.
type Tool interface {
	// Definition returns the tool's metadata.
	Definition() Definition

	// Exec runs the tool. All results, including failures, are text;
	// failures use the "Error: ..." convention.
	Exec(ctx context.Context, args map[string]any) string
}

// Registry holds tool instances and counts invocations.
type Registry struct {
	mu     sync.Mutex
	tools  map[string]Tool
	counts map[string]int
	logger *logx.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		counts: make(map[string]int),
		logger: logx.NewLogger("tools"),
	}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := tool.Definition().Name
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Call invokes a tool by name. Unknown tools and panics inside tools are
// reported as conventional error strings so role turns never crash a session.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (result string) {
	r.mu.Lock()
	tool, exists := r.tools[name]
	if exists {
		r.counts[name]++
	}
	r.mu.Unlock()

	if !exists {
		return Errorf("unknown tool %q", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool %s panicked: %v", name, rec)
			result = Errorf("tool %s failed: %v", name, rec)
		}
	}()

	r.logger.Debug("calling tool %s with args %v", name, args)
	return tool.Exec(ctx, args)
}

// InvocationCount returns how many times the named tool has been called.
func (r *Registry) InvocationCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

// TotalInvocations returns the sum of all tool invocation counts.
func (r *Registry) TotalInvocations() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, c := range r.counts {
		total += c
	}
	return total
}

// ResetCounts zeroes the invocation counters. Controllers call this before a
// session run they want to audit.
func (r *Registry) ResetCounts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = make(map[string]int)
}

// Definitions returns metadata for the named tools, or for all registered
// tools when names is empty. Unknown names are skipped.
func (r *Registry) Definitions(names ...string) []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	result := make([]Definition, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			result = append(result, tool.Definition())
		}
	}
	return result
}

// View restricts a registry to an allow-list of tool names. It shares the
// underlying counters with the parent registry.
type View struct {
	registry *Registry
	allowed  map[string]struct{}
}

// NewView creates a restricted view over the registry.
func (r *Registry) NewView(allowedTools []string) *View {
	allowed := make(map[string]struct{}, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = struct{}{}
	}
	return &View{registry: r, allowed: allowed}
}

// Call invokes an allowed tool, or returns a conventional error string.
func (v *View) Call(ctx context.Context, name string, args map[string]any) string {
	if _, ok := v.allowed[name]; !ok {
		return Errorf("tool %q not allowed in this context", name)
	}
	return v.registry.Call(ctx, name, args)
}

// Definitions returns metadata for the allowed tools.
func (v *View) Definitions() []Definition {
	names := make([]string, 0, len(v.allowed))
	for name := range v.allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return v.registry.Definitions(names...)
}

// StringArg extracts a required string argument.
func StringArg(args map[string]any, key string) (string, bool) {
	value, ok := args[key].(string)
	return value, ok
}
