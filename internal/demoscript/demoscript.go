// Package demoscript loads the scripted transfer file the serve demo
// replays against the wired services, standing in for a real platform
// connection (the transport/pub-sub layer is out of scope here): a
// versioned list of steps, each a platform chunk upload, a URL
// download, or a firmware install.
package demoscript

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Action names a demoscript.Step's kind.
type Action string

const (
	ActionUpload      Action = "upload"       // platform-upload flavor
	ActionURLDownload Action = "url_download" // URL-download flavor
	ActionInstall     Action = "install"      // firmware install
)

// Step is one scripted action. Only the fields relevant to Action are
// read; the rest are ignored.
type Step struct {
	Action Action `yaml:"action"`
	Device string `yaml:"device"`

	// upload
	Name    string `yaml:"name,omitempty"`
	Content string `yaml:"content,omitempty"` // literal bytes, upload source

	// url_download
	URL string `yaml:"url,omitempty"`

	// install
	FileName string `yaml:"file_name,omitempty"`
}

// Script is the top-level document.
type Script struct {
	Version int    `yaml:"version"`
	Steps   []Step `yaml:"steps"`
}

// Load reads and validates a scripted transfer file.
func Load(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("demoscript: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("demoscript: parsing: %w", err)
	}
	if s.Version != 1 {
		return nil, fmt.Errorf("demoscript: unsupported version: %d", s.Version)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("demoscript: no steps")
	}
	for i, step := range s.Steps {
		if step.Device == "" {
			return nil, fmt.Errorf("demoscript: step %d missing device", i)
		}
		switch step.Action {
		case ActionUpload:
			if step.Name == "" {
				return nil, fmt.Errorf("demoscript: step %d upload missing name", i)
			}
		case ActionURLDownload:
			if step.URL == "" {
				return nil, fmt.Errorf("demoscript: step %d url_download missing url", i)
			}
		case ActionInstall:
			if step.FileName == "" {
				return nil, fmt.Errorf("demoscript: step %d install missing file_name", i)
			}
		default:
			return nil, fmt.Errorf("demoscript: step %d unknown action %q", i, step.Action)
		}
	}
	return &s, nil
}

// Default returns the built-in demo script used when serve is started
// with no --script flag: one upload, one URL download.
func Default() *Script {
	return &Script{
		Version: 1,
		Steps: []Step{
			{Action: ActionUpload, Device: "demo-device", Name: "hello.txt", Content: "hello from the demo script"},
			{Action: ActionURLDownload, Device: "demo-device", URL: "https://example.com/readme.txt"},
		},
	}
}
