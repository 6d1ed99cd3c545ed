package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/glorpus-work/crxget/pkg/errors"
)

// ScriptExtension is the file extension hook scripts must carry.
const ScriptExtension = ".tengo"

// LoadScriptFile reads a Tengo script from path and registers it for hookType.
// An empty path is a no-op.
func LoadScriptFile(executor *TengoExecutor, hookType HookType, path string) error {
	if path == "" {
		return nil
	}
	if !slices.Contains(ValidHookTypes(), hookType) {
		return fmt.Errorf("%w: unknown hook type %q", errors.ErrHookLoad, hookType)
	}
	if ext := filepath.Ext(path); ext != ScriptExtension {
		return fmt.Errorf("%w: %s: unsupported extension %q", errors.ErrHookLoad, path, ext)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrHookLoad, err)
	}

	executor.AddScript(hookType, string(content))
	return nil
}
