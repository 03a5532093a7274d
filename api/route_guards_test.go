package api

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Routes that act on chat or department data must go through a permission
// guard; read-only diagnostics and navigation check access themselves.
func TestMutatingPortalRoutesHavePermissionGuards(t *testing.T) {
	root := projectRoot(t)
	path := filepath.Join(root, "api", "routes_handlers.go")
	lines := readLines(t, path)
	found := 0
	for i, line := range lines {
		if !strings.Contains(line, "apiRouter.MethodFunc(") {
			continue
		}
		if !strings.Contains(line, "\"/chat/") && !strings.Contains(line, "\"/contacts/") {
			continue
		}
		found++
		if strings.Contains(line, "s.requirePermission(") {
			continue
		}
		t.Fatalf("unguarded route in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
	}
	if found == 0 {
		t.Fatalf("no chat/contacts routes found in %s", path)
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(thisFile), ".."))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return lines
}
