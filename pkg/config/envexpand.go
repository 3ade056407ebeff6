package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go template
// syntax ({{.VAR_NAME}}). Template syntax is used instead of $-substitution
// so literal $ characters in prompts and regex patterns survive untouched.
//
// Missing variables expand to the empty string; scenario validation catches
// required fields left empty. Content that fails to parse as a template is
// returned unchanged so plain YAML passes through.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("scenarios").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			envMap[kv[:idx]] = kv[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
