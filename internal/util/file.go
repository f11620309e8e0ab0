package util

import (
	"path/filepath"
	"strings"
)

// HasAllowedExt 扩展名白名单校验（不区分大小写）
func HasAllowedExt(filename string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// SafeFilename strips directories and keeps only [A-Za-z0-9._-].
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(strings.ReplaceAll(b.String(), "..", "_"), "_.")
	if out == "" {
		return "file"
	}
	return out
}
