package capture

import (
	_ "embed"
	"strconv"
	"strings"
)

// DefaultBinding is the runtime binding the hook reports through.
const DefaultBinding = "__jobpilotCapture"

//go:embed hook.js
var hookSource string

// Script returns the fetch hook to install before any page script runs.
// Every captured chunk and the final end/abort marker are posted as JSON
// Messages through window[binding].
func Script(binding string) string {
	if strings.TrimSpace(binding) == "" {
		binding = DefaultBinding
	}
	return strings.Replace(hookSource, "__BINDING__", strconv.Quote(binding), 1)
}
