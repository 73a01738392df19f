package core

/*------------------------------------------------------------------
 *
 * Purpose:	Flash-backed script store: three logical slots (Default,
 *		User, Clear), sector-aligned writes, raising a
 *		flash-pending flag while committing (spec 3.1, 6.2).
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"github.com/cv-synth/cvcore/internal/platform"
	"github.com/lestrrat-go/strftime"
	"gopkg.in/yaml.v3"
)

const MaxUserScriptBytes = 16 * 1024

type scriptSlotTag int

const (
	SlotDefault scriptSlotTag = iota
	SlotUser
	SlotClear
)

type userScriptMeta struct {
	Name      string `yaml:"name"`
	SavedAt   string `yaml:"saved_at"`
	SourceLen int    `yaml:"source_len"`
}

// FlashPauseFlag is the global "flash operation pending" flag (spec 4.9, 5):
// SaveUser sets it for the duration of a flash write and clears it after.
// The audio callback does not read it, so audio keeps running during a
// write.
type FlashPauseFlag struct {
	pending bool
}

func (f *FlashPauseFlag) Pending() bool { return f.pending }

// ScriptStore wraps a platform.Flash with the three-slot model and the
// name-extraction/metadata convention of spec 6.2.
type ScriptStore struct {
	flash platform.Flash
	pause *FlashPauseFlag

	defaultSource string

	current     scriptSlotTag
	userSource  string
	userName    string
}

func NewScriptStore(flash platform.Flash, pause *FlashPauseFlag, defaultSource string) *ScriptStore {
	return &ScriptStore{flash: flash, pause: pause, defaultSource: defaultSource, current: SlotDefault}
}

// SaveUser commits a user script to flash, holding the FlashPauseFlag raised
// for the duration of the write (spec 6.2).
func (s *ScriptStore) SaveUser(source, name string) error {
	if len(source) > MaxUserScriptBytes {
		return fmt.Errorf("script exceeds %d bytes", MaxUserScriptBytes)
	}

	var meta = userScriptMeta{
		Name:      name,
		SavedAt:   timestamp(),
		SourceLen: len(source),
	}
	var metaBytes, err = yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("fstore: encoding metadata: %w", err)
	}

	var payload = append(metaBytes, []byte("---\n")...)
	payload = append(payload, []byte(source)...)

	s.pause.pending = true
	defer func() { s.pause.pending = false }()

	if err := s.flash.Write(payload); err != nil {
		return fmt.Errorf("fstore: flash write: %w", err)
	}

	s.userSource = source
	s.userName = name
	s.current = SlotUser
	return nil
}

// Clear marks the slot as Clear (spec 6.2); does not erase flash content
// immediately, matching the teacher's "mark, don't necessarily wipe"
// posture in mheard.go's table-entry reuse convention.
func (s *ScriptStore) Clear() {
	s.current = SlotClear
	s.userSource = ""
	s.userName = ""
}

func (s *ScriptStore) DefaultSource() string {
	return s.defaultSource
}

// CurrentName reports the name of the currently active user script, if
// any (spec 6.1 `p` command).
func (s *ScriptStore) CurrentName() (string, bool) {
	if s.current != SlotUser || s.userName == "" {
		return "", false
	}
	return s.userName, true
}

func timestamp() string {
	var p, err = strftime.New("%Y-%m-%dT%H:%M:%S")
	if err != nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return p.FormatString(time.Now().UTC())
}
