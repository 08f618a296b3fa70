package api

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Every API route must resolve a session; everything beyond the auth
// endpoints must also carry a permission guard.
func TestAPIRoutesCarrySessionGuards(t *testing.T) {
	path := filepath.Join(projectRoot(t), "api", "routes.go")
	lines := readLines(t, path)
	found := 0
	for i, line := range lines {
		if !isRouteRegistration(line) {
			continue
		}
		found++
		if strings.Contains(line, "\"/auth/register\"") || strings.Contains(line, "\"/auth/login\"") {
			continue
		}
		if strings.Contains(line, "s.guard(") || strings.Contains(line, "s.withSession(") {
			continue
		}
		t.Fatalf("unguarded route in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
	}
	if found == 0 {
		t.Fatalf("no routes found in %s", path)
	}
}

func TestNonAuthRoutesRequirePermission(t *testing.T) {
	path := filepath.Join(projectRoot(t), "api", "routes.go")
	lines := readLines(t, path)
	for i, line := range lines {
		if !isRouteRegistration(line) || strings.Contains(line, "\"/auth/") {
			continue
		}
		if strings.Contains(line, "s.guard(rbac.Perm") {
			continue
		}
		t.Fatalf("route without permission guard in %s:%d -> %s", path, i+1, strings.TrimSpace(line))
	}
}

func isRouteRegistration(line string) bool {
	for _, method := range []string{"r.Get(", "r.Post(", "r.Put(", "r.Patch(", "r.Delete("} {
		if strings.Contains(line, method) {
			return true
		}
	}
	return false
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
