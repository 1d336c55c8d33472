package registry

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
)

// CanonicalArgs renders arguments as compact JSON with sorted keys at every
// nesting level. nil and empty maps both render as {}.
func CanonicalArgs(args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return "", fmt.Errorf("failed to canonicalise arguments: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// MockKey is the logical index key category:name:canonicalArgs.
func MockKey(category Category, name string, args map[string]any) (string, error) {
	canon, err := CanonicalArgs(args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s", category, name, canon), nil
}

// ArgsHash is the first 8 hex digits of md5 over the canonical arguments.
func ArgsHash(args map[string]any) (string, error) {
	canon, err := CanonicalArgs(args)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(canon))
	return hex.EncodeToString(sum[:])[:8], nil
}

// MockFileStem is the file name, without extension, of a recording. Names
// that SafeName rewrites mix the original name into the hash, so that names
// differing only in rewritten characters get separate files.
func MockFileStem(name string, args map[string]any) (string, error) {
	safe := SafeName(name)
	if safe == name {
		hash, err := ArgsHash(args)
		if err != nil {
			return "", err
		}
		return safe + "_" + hash, nil
	}
	canon, err := CanonicalArgs(args)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(name + "\x00" + canon))
	return safe + "_" + hex.EncodeToString(sum[:])[:8], nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SafeName makes an entity name usable as a file name component.
func SafeName(name string) string {
	s := unsafeFileChars.ReplaceAllString(name, "_")
	if s == "" {
		return "_"
	}
	return s
}
