package headless

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/frinder/internal/timeline"
)

// State переживает перезапуск клиента.
type State struct {
	// FullScreenCelebration: nil, пока пользователь не выбирал.
	FullScreenCelebration *bool          `yaml:"full_screen_celebration,omitempty"`
	Acceptance            timeline.State `yaml:"acceptance"`
}

// Celebration возвращает выбор пользователя, по умолчанию: на весь экран.
func (s State) Celebration() bool {
	return s.FullScreenCelebration == nil || *s.FullScreenCelebration
}

// LoadState читает файл состояния. Отсутствующий файл: пустое состояние.
func LoadState(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("headless.LoadState: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("headless.LoadState %s: %w", path, err)
	}
	return st, nil
}

// SaveState пишет атомарно: временный файл, затем rename.
func SaveState(path string, st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("headless.SaveState: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("headless.SaveState: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("headless.SaveState: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("headless.SaveState: %w", err)
	}
	return nil
}

// State: текущее состояние агента для сохранения.
func (a *Agent) State() State {
	fs := a.opts.FullScreenCelebration
	return State{FullScreenCelebration: &fs, Acceptance: a.tracker.Export()}
}
