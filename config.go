package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// loadConfig reads a TOML file whose keys are flag names and applies every
// value whose flag was not given on the command line.
//
//	slow-in = "~/logs/slow.log"
//	driver  = "sqlite"
//	brokers = ["k1:9092", "k2:9092"]
func loadConfig(fs *flag.FlagSet, path string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	path = expandHome(path, home)

	values := map[string]interface{}{}
	if _, err := toml.DecodeFile(path, &values); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if fs.Lookup(name) == nil {
			return fmt.Errorf("config %s: unknown key %q", path, name)
		}
		if explicit[name] || name == "config" {
			continue
		}
		if err := fs.Set(name, configValue(values[name])); err != nil {
			return fmt.Errorf("config %s: %s: %w", path, name, err)
		}
	}
	return nil
}

func configValue(v interface{}) string {
	list, ok := v.([]interface{})
	if !ok {
		return fmt.Sprint(v)
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = fmt.Sprint(item)
	}
	return strings.Join(parts, ",")
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
