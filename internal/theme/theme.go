package theme

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v2"
)

var (
	ErrNoKeys       = errors.New("theme file contains no known keys")
	ErrInvalidValue = errors.New("invalid theme value")
)

var safeValue = regexp.MustCompile(`^[#(),.%\w\s'"-]{1,100}$`)

// Theme holds the colours and font used by every page.
type Theme struct {
	Bg        string `yaml:"bg,omitempty"`
	Text      string `yaml:"text,omitempty"`
	Accent    string `yaml:"accent,omitempty"`
	BtnBg     string `yaml:"btn_bg,omitempty"`
	BtnText   string `yaml:"btn_text,omitempty"`
	Container string `yaml:"container,omitempty"`
	Border    string `yaml:"border,omitempty"`
	Font      string `yaml:"font,omitempty"`
}

func Default() Theme {
	return Theme{
		Bg:        "#f8f9fa",
		Text:      "#212529",
		Accent:    "#0d6efd",
		BtnBg:     "#0d6efd",
		BtnText:   "#ffffff",
		Container: "#ffffff",
		Border:    "#dee2e6",
		Font:      "system-ui, sans-serif",
	}
}

func (t Theme) values() []string {
	return []string{t.Bg, t.Text, t.Accent, t.BtnBg, t.BtnText, t.Container, t.Border, t.Font}
}

// Merge returns t with every non-empty field of o applied on top.
func (t Theme) Merge(o Theme) Theme {
	pick := func(cur, next string) string {
		if next != "" {
			return next
		}
		return cur
	}
	return Theme{
		Bg:        pick(t.Bg, o.Bg),
		Text:      pick(t.Text, o.Text),
		Accent:    pick(t.Accent, o.Accent),
		BtnBg:     pick(t.BtnBg, o.BtnBg),
		BtnText:   pick(t.BtnText, o.BtnText),
		Container: pick(t.Container, o.Container),
		Border:    pick(t.Border, o.Border),
		Font:      pick(t.Font, o.Font),
	}
}

func (t Theme) empty() bool {
	for _, v := range t.values() {
		if v != "" {
			return false
		}
	}
	return true
}

// Validate rejects values that are not plain CSS colours, lengths or font names.
func (t Theme) Validate() error {
	for _, v := range t.values() {
		if v != "" && !safeValue.MatchString(v) {
			return fmt.Errorf("%w: %q", ErrInvalidValue, v)
		}
	}
	return nil
}

// Parse decodes a YAML theme. Keys may sit at the top level or under a
// "theme" section, so a full config file is accepted as well.
func Parse(data []byte) (Theme, error) {
	var wrapped struct {
		Theme *Theme `yaml:"theme"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return Theme{}, fmt.Errorf("failed to parse theme: %w", err)
	}

	var t Theme
	if wrapped.Theme != nil {
		t = *wrapped.Theme
	} else if err := yaml.Unmarshal(data, &t); err != nil {
		return Theme{}, fmt.Errorf("failed to parse theme: %w", err)
	}

	if t.empty() {
		return Theme{}, ErrNoKeys
	}
	if err := t.Validate(); err != nil {
		return Theme{}, err
	}
	return t, nil
}

// Store keeps the active theme. It is read on every page render and
// replaced from the admin upload page.
type Store struct {
	mx      sync.RWMutex
	current Theme
	path    string
}

// NewStore starts from initial. When path is set and holds a saved
// theme, that theme is applied on top.
func NewStore(initial Theme, path string) (*Store, error) {
	s := &Store{current: initial, path: path}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read theme file: %w", err)
	}

	saved, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.current = s.current.Merge(saved)
	return s, nil
}

func (s *Store) Current() Theme {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.current
}

// Apply parses an uploaded theme, merges it into the active one and
// saves the result when the store has a path.
func (s *Store) Apply(data []byte) (Theme, error) {
	t, err := Parse(data)
	if err != nil {
		return Theme{}, err
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	next := s.current.Merge(t)
	if s.path != "" {
		out, err := yaml.Marshal(next)
		if err != nil {
			return Theme{}, fmt.Errorf("failed to encode theme: %w", err)
		}
		if err := os.WriteFile(s.path, out, 0o644); err != nil {
			return Theme{}, fmt.Errorf("failed to save theme: %w", err)
		}
	}
	s.current = next
	return next, nil
}
