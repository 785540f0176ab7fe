// Package templates embeds the starter configuration written by "craftbridge init".
package templates

import "embed"

//go:embed config.yaml
var FS embed.FS

// Config returns the starter config file.
func Config() []byte {
	data, err := FS.ReadFile("config.yaml")
	if err != nil {
		panic("templates: config.yaml missing from embed: " + err.Error())
	}
	return data
}
