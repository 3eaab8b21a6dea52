package model

// FileStat describes one image file in the artifact store
type FileStat struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	ModTime string `json:"modTime"`
	Mime    string `json:"mime"`
}

// ReclaimResult lists what a cleanup pass removed
type ReclaimResult struct {
	Removed []FileStat `json:"removed"`
	Errors  []string   `json:"errors,omitempty"`
}

// BrowserStatus reports the state of the shared browser session
type BrowserStatus struct {
	Driver   string `json:"driver"`
	State    string `json:"state"`
	Pages    int    `json:"pages"`
	Launches int64  `json:"launches"`
}
