package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tunerd/internal/common/fsutil"
	"tunerd/internal/identity"
	"tunerd/pkg/types"
)

// Scan builds the model catalog from a directory. A model is either a *.gguf
// file or a subdirectory carrying a config.json. ID is the entry name; Path
// is absolute.
func Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		name := e.Name()
		p := filepath.Join(abs, name)
		if e.IsDir() {
			if _, err := os.Stat(filepath.Join(p, "config.json")); err != nil {
				continue
			}
		} else if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		quant := identity.QuantLabel(name)
		if quant == "unknown" {
			quant = ""
		}
		models = append(models, types.Model{
			ID:     name,
			Name:   displayName(name, quant),
			Path:   p,
			Quant:  quant,
			Family: familyOf(name),
		})
	}
	return models, nil
}

// displayName strips the extension and moves the quant token into parens.
func displayName(filename, quant string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	if quant == "" {
		return name
	}
	for _, sep := range []string{"-" + quant, "." + quant, "_" + quant} {
		if idx := strings.LastIndex(strings.ToUpper(name), strings.ToUpper(sep)); idx >= 0 {
			return name[:idx] + " (" + quant + ")"
		}
	}
	return name
}

var families = []string{"llama", "mistral", "mixtral", "qwen", "phi", "gemma", "deepseek", "smollm", "olmo"}

func familyOf(name string) string {
	lower := strings.ToLower(name)
	for _, f := range families {
		if strings.Contains(lower, f) {
			return f
		}
	}
	return ""
}
