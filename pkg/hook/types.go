// Package hook runs user supplied Tengo scripts after an extension has been acquired.
package hook

import "context"

// HookType represents the type of hook.
type HookType string

// Supported hook types.
const (
	PostAcquire HookType = "post-acquire"
)

// ValidHookTypes lists every hook type a script can be registered for.
func ValidHookTypes() []HookType {
	return []HookType{PostAcquire}
}

// HookContext contains information passed to hooks.
type HookContext struct {
	ExtensionID  string
	ArchivePath  string
	ExtractDir   string
	ArchiveBytes int64
	Files        int
	FromCache    bool
	Vars         map[string]interface{}
}

// Runner executes hooks. Implementations return nil when no script is registered.
type Runner interface {
	Execute(ctx context.Context, hookType HookType, hc HookContext) error
}
