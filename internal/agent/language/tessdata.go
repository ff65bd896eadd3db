package language

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TessdataCache knows which tesseract models are installed. It is loaded
// lazily, once, and shared read-only by every job in the process.
type TessdataCache struct {
	dir     string
	readDir func(string) ([]os.DirEntry, error)

	group     singleflight.Group
	mu        sync.RWMutex
	installed map[string]bool
}

func NewTessdataCache(dir string) *TessdataCache {
	return &TessdataCache{dir: dir, readDir: os.ReadDir}
}

// Installed returns the set of installed model names ("eng", "hin", ...).
func (c *TessdataCache) Installed() (map[string]bool, error) {
	c.mu.RLock()
	if c.installed != nil {
		defer c.mu.RUnlock()
		return c.installed, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("tessdata", func() (interface{}, error) {
		c.mu.RLock()
		if c.installed != nil {
			defer c.mu.RUnlock()
			return c.installed, nil
		}
		c.mu.RUnlock()

		entries, err := c.readDir(c.dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list tessdata dir %s: %w", c.dir, err)
		}
		models := make(map[string]bool)
		for _, e := range entries {
			if name, ok := strings.CutSuffix(e.Name(), ".traineddata"); ok && !e.IsDir() {
				models[name] = true
			}
		}

		c.mu.Lock()
		c.installed = models
		c.mu.Unlock()
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]bool), nil
}

// Resolve drops models that are not installed from a tesseract language
// string. When nothing survives, or the directory cannot be read, "eng" is
// returned so OCR still runs.
func (c *TessdataCache) Resolve(ocrLang string) string {
	installed, err := c.Installed()
	if err != nil || len(installed) == 0 {
		return "eng"
	}
	var kept []string
	for _, part := range strings.Split(ocrLang, "+") {
		if installed[part] {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "eng"
	}
	return strings.Join(kept, "+")
}
