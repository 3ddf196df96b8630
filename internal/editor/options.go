package editor

import (
	"fmt"
	"strings"

	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
)

// Default chords.
const (
	DefaultSubmitKey = "ctrl+d"
	DefaultCancelKey = "ctrl+c"
)

// Options configures a single Collect call. The zero value is valid.
type Options struct {
	// Placeholder is shown dimmed while the buffer is empty.
	Placeholder string

	// DefaultContent pre-populates the buffer. Lines split on "\n".
	DefaultContent string

	// MaxLines caps the number of lines. Zero means unlimited.
	MaxLines int

	// SubmitKeys and CancelKeys are chord names; see ParseKey.
	SubmitKeys []string
	CancelKeys []string

	// ShowLineNumbers defaults to true when nil.
	ShowLineNumbers *bool
}

// Bool returns a pointer to v, for ShowLineNumbers.
func Bool(v bool) *bool {
	return &v
}

// settings is Options merged with defaults and validated.
type settings struct {
	placeholder    string
	defaultContent string
	maxLines       int
	submit         []Key
	cancel         []Key
	lineNumbers    bool
}

func (s settings) isSubmit(k Key) bool {
	return containsKey(s.submit, k)
}

func (s settings) isCancel(k Key) bool {
	return containsKey(s.cancel, k)
}

func containsKey(keys []Key, k Key) bool {
	for _, candidate := range keys {
		if candidate == k {
			return true
		}
	}

	return false
}

// Validate reports whether o would be accepted by Collect.
func (o Options) Validate() error {
	_, err := o.resolve()
	return err
}

func (o Options) resolve() (settings, error) {
	s := settings{
		placeholder:    o.Placeholder,
		defaultContent: o.DefaultContent,
		maxLines:       o.MaxLines,
		lineNumbers:    o.ShowLineNumbers == nil || *o.ShowLineNumbers,
	}

	if o.MaxLines < 0 {
		return settings{}, clierrors.InvalidInputOptions(fmt.Sprintf("max lines must not be negative, got %d", o.MaxLines))
	}

	if o.MaxLines > 0 {
		if lines := strings.Count(o.DefaultContent, "\n") + 1; lines > o.MaxLines {
			return settings{}, clierrors.InvalidInputOptions(
				fmt.Sprintf("default content has %d lines, more than max lines %d", lines, o.MaxLines))
		}
	}

	var err error

	if s.submit, err = parseKeys(o.SubmitKeys, DefaultSubmitKey); err != nil {
		return settings{}, clierrors.InvalidInputOptions(fmt.Sprintf("submit key: %v", err))
	}

	if s.cancel, err = parseKeys(o.CancelKeys, DefaultCancelKey); err != nil {
		return settings{}, clierrors.InvalidInputOptions(fmt.Sprintf("cancel key: %v", err))
	}

	for _, k := range s.submit {
		if containsKey(s.cancel, k) {
			return settings{}, clierrors.InvalidInputOptions(fmt.Sprintf("%s is both a submit and a cancel key", k))
		}
	}

	return s, nil
}

func parseKeys(names []string, fallback string) ([]Key, error) {
	if len(names) == 0 {
		names = []string{fallback}
	}

	keys := make([]Key, 0, len(names))

	for _, name := range names {
		k, err := ParseKey(name)
		if err != nil {
			return nil, err
		}

		keys = append(keys, k)
	}

	return keys, nil
}
