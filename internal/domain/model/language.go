package model

import "strings"

// runnerLanguages maps candidate-facing language names to the runner's language enum.
var runnerLanguages = map[string]string{
	"c":          "C",
	"cpp":        "Cpp",
	"c++":        "Cpp",
	"java":       "Java",
	"python":     "Python",
	"python3":    "Python",
	"javascript": "Nodejs",
	"nodejs":     "Nodejs",
	"go":         "Golang",
	"golang":     "Golang",
	"rust":       "Rust",
}

// RunnerLanguage resolves a language name; ok is false for unsupported languages.
func RunnerLanguage(name string) (string, bool) {
	lang, ok := runnerLanguages[strings.ToLower(strings.TrimSpace(name))]
	return lang, ok
}
