package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFlash is an in-memory platform.Flash stand-in for exercising
// ScriptStore without touching a real file or sector device.
type memFlash struct {
	data    []byte
	failing bool
}

func (f *memFlash) Write(slot []byte) error {
	if f.failing {
		return errors.New("simulated write failure")
	}
	f.data = append([]byte(nil), slot...)
	return nil
}

func (f *memFlash) Read() ([]byte, error) { return f.data, nil }
func (f *memFlash) Erase() error          { f.data = nil; return nil }

func TestScriptStoreSaveUserBecomesCurrent(t *testing.T) {
	var flash = &memFlash{}
	var pause = &FlashPauseFlag{}
	var store = NewScriptStore(flash, pause, "-- default")

	require.NoError(t, store.SaveUser("-- my_patch.lua\nfunction init() end", "my_patch.lua"))

	var name, ok = store.CurrentName()
	require.True(t, ok)
	assert.Equal(t, "my_patch.lua", name)
	assert.NotEmpty(t, flash.data)
}

func TestScriptStoreSaveUserClearsPauseFlagAfterWrite(t *testing.T) {
	var flash = &memFlash{}
	var pause = &FlashPauseFlag{}
	var store = NewScriptStore(flash, pause, "")

	require.NoError(t, store.SaveUser("function init() end", ""))
	assert.False(t, pause.Pending(), "the pause flag must be cleared once the write completes")
}

func TestScriptStoreSaveUserRejectsOversizedSource(t *testing.T) {
	var flash = &memFlash{}
	var store = NewScriptStore(flash, &FlashPauseFlag{}, "")

	var big = make([]byte, MaxUserScriptBytes+1)
	var err = store.SaveUser(string(big), "")
	assert.Error(t, err)

	var _, ok = store.CurrentName()
	assert.False(t, ok, "a rejected save must not become the current script")
}

func TestScriptStoreFlashWriteFailureLeavesPriorScriptInPlace(t *testing.T) {
	var flash = &memFlash{}
	var store = NewScriptStore(flash, &FlashPauseFlag{}, "")
	require.NoError(t, store.SaveUser("function init() end", "good.lua"))

	flash.failing = true
	var err = store.SaveUser("function init() error() end", "bad.lua")
	assert.Error(t, err)

	var name, ok = store.CurrentName()
	require.True(t, ok)
	assert.Equal(t, "good.lua", name, "a failed flash write must retain the prior script (spec 7)")
}

func TestScriptStoreClearDropsCurrentUserScript(t *testing.T) {
	var flash = &memFlash{}
	var store = NewScriptStore(flash, &FlashPauseFlag{}, "")
	require.NoError(t, store.SaveUser("function init() end", "x.lua"))

	store.Clear()
	var _, ok = store.CurrentName()
	assert.False(t, ok)
}

func TestScriptStoreDefaultSourceUnaffectedByUserSlot(t *testing.T) {
	var store = NewScriptStore(&memFlash{}, &FlashPauseFlag{}, "-- builtin default")
	require.NoError(t, store.SaveUser("function init() end", "x.lua"))
	assert.Equal(t, "-- builtin default", store.DefaultSource())
}
