// Package toolconfig writes the daemon's tool registration into the config
// files of external AI clients. Each writer merges into the client's own
// format, preserves every unrelated key, and is idempotent: re-running an
// installer does not rewrite an already-correct file.
package toolconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"useaid/internal/store"
)

// ServerName is the key the daemon registers under in every client config.
const ServerName = "useai"

// Entry describes the daemon registration written into a client config.
type Entry struct {
	Command string   `json:"command" toml:"command" yaml:"command"`
	Args    []string `json:"args,omitempty" toml:"args,omitempty" yaml:"args,omitempty"`
	URL     string   `json:"url,omitempty" toml:"url,omitempty" yaml:"url,omitempty"`
}

// Write merges the entry into the config file at path, choosing the format
// from the file extension.
func Write(path string, entry Entry) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return WriteJSON(path, entry)
	case ".toml":
		return WriteTOML(path, entry)
	case ".yaml", ".yml":
		return WriteYAML(path, entry)
	default:
		return fmt.Errorf("toolconfig: unsupported config format %q", filepath.Ext(path))
	}
}

// entryMap is the open form merged into the client's mapping.
func entryMap(entry Entry) map[string]any {
	m := map[string]any{"command": entry.Command}
	if len(entry.Args) > 0 {
		args := make([]any, len(entry.Args))
		for i, a := range entry.Args {
			args[i] = a
		}
		m["args"] = args
	}
	if entry.URL != "" {
		m["url"] = entry.URL
	}
	return m
}

// WriteJSON merges into a Claude-style JSON config: the entry lands under
// mcpServers.useai, everything else in the file is preserved.
func WriteJSON(path string, entry Entry) error {
	root := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("toolconfig: %s is not valid JSON: %w", filepath.Base(path), err)
		}
	}

	servers, _ := root["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	servers[ServerName] = entryMap(entry)
	root["mcpServers"] = servers

	out, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("toolconfig: encode: %w", err)
	}
	return writeIfChanged(path, append(out, '\n'))
}

// WriteTOML merges into a Codex-style TOML config under
// [mcp_servers.useai].
func WriteTOML(path string, entry Entry) error {
	root := map[string]any{}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &root); err != nil {
			return fmt.Errorf("toolconfig: %s is not valid TOML: %w", filepath.Base(path), err)
		}
	}

	servers, _ := root["mcp_servers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	servers[ServerName] = entryMap(entry)
	root["mcp_servers"] = servers

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(root); err != nil {
		return fmt.Errorf("toolconfig: encode: %w", err)
	}
	return writeIfChanged(path, buf.Bytes())
}

// WriteYAML merges into a YAML agent config under mcp_servers.useai.
func WriteYAML(path string, entry Entry) error {
	root := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("toolconfig: %s is not valid YAML: %w", filepath.Base(path), err)
		}
	}

	servers, _ := root["mcp_servers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	servers[ServerName] = entryMap(entry)
	root["mcp_servers"] = servers

	out, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("toolconfig: encode: %w", err)
	}
	return writeIfChanged(path, out)
}

// Remove deletes the registration from a config file, leaving the rest of
// the file intact. A missing file or missing entry is a no-op.
func Remove(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return removeFrom(path, "mcpServers",
			func(data []byte, v any) error { return json.Unmarshal(data, v) },
			func(v any) ([]byte, error) {
				out, err := json.MarshalIndent(v, "", "  ")
				if err != nil {
					return nil, err
				}
				return append(out, '\n'), nil
			})
	case ".toml":
		return removeFrom(path, "mcp_servers",
			func(data []byte, v any) error { return toml.Unmarshal(data, v) },
			func(v any) ([]byte, error) {
				var buf bytes.Buffer
				err := toml.NewEncoder(&buf).Encode(v)
				return buf.Bytes(), err
			})
	case ".yaml", ".yml":
		return removeFrom(path, "mcp_servers", yaml.Unmarshal, yaml.Marshal)
	default:
		return fmt.Errorf("toolconfig: unsupported config format %q", filepath.Ext(path))
	}
}

func removeFrom(path, serversKey string, decode func([]byte, any) error, encode func(any) ([]byte, error)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	root := map[string]any{}
	if err := decode(data, &root); err != nil {
		return fmt.Errorf("toolconfig: parse %s: %w", filepath.Base(path), err)
	}
	servers, _ := root[serversKey].(map[string]any)
	if servers == nil {
		return nil
	}
	if _, ok := servers[ServerName]; !ok {
		return nil
	}
	delete(servers, ServerName)
	root[serversKey] = servers

	out, err := encode(root)
	if err != nil {
		return fmt.Errorf("toolconfig: encode: %w", err)
	}
	return writeIfChanged(path, out)
}

// writeIfChanged writes atomically, skipping the write when the file
// already holds exactly the desired bytes.
func writeIfChanged(path string, data []byte) error {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	return store.WriteFileAtomic(path, data, 0644)
}
