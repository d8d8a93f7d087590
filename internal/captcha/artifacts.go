package captcha

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"platewatch/internal/components/telemetry"

	"github.com/mazen160/go-random"
)

const report_artifacts_save = "artifacts.save"

// Artifacts keeps the most recent challenge image on disk for debugging, the
// files are removed by Cleanup when the process shuts down.
type Artifacts struct {
	dir string
	tel telemetry.API

	mu      sync.Mutex
	current string
	written []string
}

// NewArtifacts returns nil if dir is empty, a nil *Artifacts is valid and
// does nothing.
func NewArtifacts(dir string, tel telemetry.API) *Artifacts {
	if dir == "" {
		return nil
	}
	return &Artifacts{dir: dir, tel: telemetry.NewScopedAPI("captcha", tel)}
}

func (a *Artifacts) Save(image []byte) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	suffix, err := random.String(8)
	if err != nil {
		a.tel.ReportWarning(report_artifacts_save, err)
		return
	}
	err = os.MkdirAll(a.dir, 0777)
	if err != nil {
		a.tel.ReportWarning(report_artifacts_save, err)
		return
	}
	path := filepath.Join(a.dir, fmt.Sprintf("captcha-%s.png", suffix))
	err = os.WriteFile(path, image, 0644)
	if err != nil {
		a.tel.ReportWarning(report_artifacts_save, err)
		return
	}

	if a.current != "" {
		_ = os.Remove(a.current)
	}
	a.current = path
	a.written = append(a.written, path)
}

// Current is the path of the last saved image, or "".
func (a *Artifacts) Current() string {
	if a == nil {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Cleanup deletes every image written by this process.
func (a *Artifacts) Cleanup() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, path := range a.written {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	a.written = nil
	a.current = ""
	return errors.Join(errs...)
}
