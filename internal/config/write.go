package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// SetKeyInFile sets a dotted scalar key in the config file at path, creating
// the file if needed. The document is re-encoded, so comments are not kept.
// Other tables, including bookmarks, are preserved.
func SetKeyInFile(path, key, value string) error {
	opt, ok := LookupOption(key)
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	v, err := opt.Parse(value)
	if err != nil {
		return err
	}

	doc := make(map[string]any)
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlink not allowed in config path: %s", path)
		}
		if _, err := toml.DecodeFile(path, &doc); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	section, name, _ := strings.Cut(key, ".")
	table, _ := doc[section].(map[string]any)
	if table == nil {
		table = make(map[string]any)
		doc[section] = table
	}
	table[name] = v

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return atomicWriteFile(path, buf.Bytes(), 0644)
}

// atomicWriteFile writes to a temporary file in the same directory and
// renames it over path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
