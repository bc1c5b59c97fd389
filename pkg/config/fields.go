package config

import (
	"reflect"
	"strings"
	"sync"
)

// field describes one leaf of Config addressed by its koanf path.
type field struct {
	path      string
	env       string
	sensitive bool
}

var (
	fieldsOnce  sync.Once
	fieldIndex  map[string]field
	envBindings map[string]string
)

func indexFields() {
	fieldsOnce.Do(func() {
		fieldIndex = make(map[string]field)
		envBindings = make(map[string]string)
		walkFields(reflect.TypeOf(Config{}), "", func(f field) {
			fieldIndex[f.path] = f
			if f.env != "" {
				envBindings[f.env] = f.path
			}
		})
	})
}

func walkFields(t reflect.Type, prefix string, visit func(field)) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name := sf.Tag.Get("koanf")
		if !sf.IsExported() || name == "" || name == "-" {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if sf.Type.Kind() == reflect.Struct && sf.Type.PkgPath() != "time" {
			walkFields(sf.Type, path, visit)
			continue
		}
		env := sf.Tag.Get("env")
		if env == "-" {
			env = ""
		}
		visit(field{
			path:      path,
			env:       env,
			sensitive: sf.Type == reflect.TypeOf(SensitiveString("")) || sf.Tag.Get("sensitive") == "true",
		})
	}
}

// GenerateEnvToConfigMap maps every tagged environment variable to its config path.
func GenerateEnvToConfigMap() map[string]string {
	indexFields()
	out := make(map[string]string, len(envBindings))
	for k, v := range envBindings {
		out[k] = v
	}
	return out
}

// GetEnvVarForConfigPath returns the environment variable bound to path, if any.
func GetEnvVarForConfigPath(path string) string {
	indexFields()
	return fieldIndex[path].env
}

// IsSensitiveConfigPath reports whether path holds a credential or DSN.
func IsSensitiveConfigPath(path string) bool {
	indexFields()
	return fieldIndex[strings.TrimSpace(path)].sensitive
}
