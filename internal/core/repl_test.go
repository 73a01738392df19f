package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVM is a luabridge.VM stand-in recording what was run/called, without
// an actual Lua interpreter behind it.
type fakeVM struct {
	ran           []string
	calledGlobals []string
	doStringErr   error
	resetCount    int
}

func (f *fakeVM) DoString(src string) error {
	f.ran = append(f.ran, src)
	return f.doStringErr
}

func (f *fakeVM) CallGlobal(name string, args ...any) error {
	f.calledGlobals = append(f.calledGlobals, name)
	return nil
}

func (f *fakeVM) Reset() {
	f.resetCount++
}

func feedString(f *Framer, s string) []ReplLine {
	var lines []ReplLine
	for i := 0; i < len(s); i++ {
		var line, complete, err = f.Feed(s[i])
		if err != nil {
			continue
		}
		if complete {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestFramerSingleLineSourceTerminatesOnNewline(t *testing.T) {
	var f Framer
	var lines = feedString(&f, "cv1:to(1.0, 0.1)\n")
	require.Len(t, lines, 1)
	assert.False(t, lines[0].IsCommand)
	assert.Equal(t, "cv1:to(1.0, 0.1)", lines[0].Source)
}

func TestFramerCommandSentinelFiresImmediatelyWithoutNewline(t *testing.T) {
	var f Framer
	var lines = feedString(&f, "^^v")
	require.Len(t, lines, 1)
	assert.True(t, lines[0].IsCommand)
	assert.Equal(t, byte('v'), lines[0].Command)
}

func TestFramerMultilineCaptureBetweenTripleBackticks(t *testing.T) {
	var f Framer
	var lines = feedString(&f, "```\nfunction init()\nend\n```")
	require.Len(t, lines, 1)
	assert.Equal(t, "\nfunction init()\nend\n", lines[0].Source, "content between the fences, including the newline right after the opening fence, is captured verbatim")
}

// TestFramerCommandSentinelSuppressedInsideBacktickCapture confirms a literal
// "^^" inside a multi-line backtick-fenced source block is not mistaken for
// a command sentinel -- only the closing ``` ends the capture.
func TestFramerCommandSentinelSuppressedInsideBacktickCapture(t *testing.T) {
	var f Framer
	feedString(&f, "```\nfunction x()\n")
	var lines = feedString(&f, "^^e\n")
	assert.Empty(t, lines, "a ^^ sequence inside an open backtick block must not be treated as a command")

	var closing = feedString(&f, "```")
	require.Len(t, closing, 1)
	assert.Contains(t, closing[0].Source, "^^e")
}

// TestREPLCommandRecognizedDuringReceptionAccumulation confirms the "mid-
// upload accumulation" command recognition the spec describes: plain
// (non-backtick) source lines fed while the REPL's upload state machine is
// in Reception still let a ^^-command end the upload, since the Framer's
// backtick in-multiline flag (the thing that gates sentinel detection)
// never activates for single-line-terminated source.
func TestREPLCommandRecognizedDuringReceptionAccumulation(t *testing.T) {
	var repl, vm, _ = newTestREPL()
	feedREPL(repl, "^^s")
	feedREPL(repl, "function init() end\n")
	feedREPL(repl, "^^e")

	assert.Contains(t, vm.calledGlobals, "init")
}

func TestFramerOverflowResetsStateAndReturnsError(t *testing.T) {
	var f Framer
	var overflowed = false
	for i := 0; i < maxLineBuffer+10; i++ {
		var _, _, err = f.Feed('a')
		if err != nil {
			overflowed = true
			break
		}
	}
	assert.True(t, overflowed)
	assert.Empty(t, f.buf)
	assert.False(t, f.inMultiline)
}

func TestExtractScriptNameFromLeadingComment(t *testing.T) {
	var name = extractScriptName("-- my_patch.lua\nfunction init() end")
	assert.Equal(t, "my_patch.lua", name)
}

func TestExtractScriptNameEmptyWithoutLeadingComment(t *testing.T) {
	var name = extractScriptName("function init() end")
	assert.Equal(t, "", name)
}

func newTestREPL() (*REPL, *fakeVM, *[]string) {
	var vm = &fakeVM{}
	var flash = &memFlash{}
	var store = NewScriptStore(flash, &FlashPauseFlag{}, "-- default")
	var repl = NewREPL(vm, store)

	var sent []string
	repl.Tx = func(line string) { sent = append(sent, line) }

	return repl, vm, &sent
}

func feedREPL(r *REPL, s string) {
	for i := 0; i < len(s); i++ {
		r.FeedByte(s[i])
	}
}

func TestREPLEvaluatesSourceImmediatelyInNormalState(t *testing.T) {
	var repl, vm, _ = newTestREPL()
	feedREPL(repl, "cv1:to(2.0, 0)\n")
	require.Len(t, vm.ran, 1)
	assert.Equal(t, "cv1:to(2.0, 0)", vm.ran[0])
}

func TestREPLScriptUploadLifecycleSavesToFlash(t *testing.T) {
	var repl, vm, sent = newTestREPL()

	feedREPL(repl, "^^s")
	feedREPL(repl, "-- patch.lua\nfunction init() end\n")
	feedREPL(repl, "^^w")

	var name, ok = repl.Store.CurrentName()
	require.True(t, ok)
	assert.Equal(t, "patch.lua", name)
	assert.Equal(t, 1, vm.resetCount, "end-upload must run the shared reset sequence")
	assert.Contains(t, strings.Join(*sent, "|"), "script saved")
}

func TestREPLEndUploadRunInRAMCallsInit(t *testing.T) {
	var repl, vm, _ = newTestREPL()

	feedREPL(repl, "^^s")
	feedREPL(repl, "function init() end\n")
	feedREPL(repl, "^^e")

	require.Len(t, vm.ran, 1)
	assert.Contains(t, vm.calledGlobals, "init")
	var _, ok = repl.Store.CurrentName()
	assert.False(t, ok, "run-in-RAM must not persist to the flash-backed store")
}

func TestREPLBufferOverflowDuringUploadFailsCleanly(t *testing.T) {
	var repl, _, sent = newTestREPL()

	feedREPL(repl, "^^s")
	for i := 0; i < maxLineBuffer+10; i++ {
		repl.FeedByte('a')
	}
	feedREPL(repl, "^^e")

	assert.Contains(t, strings.Join(*sent, "|"), "upload failed")
}

func TestREPLClearCommandDropsUserScript(t *testing.T) {
	var repl, vm, sent = newTestREPL()
	feedREPL(repl, "^^s")
	feedREPL(repl, "function init() end\n")
	feedREPL(repl, "^^w")

	feedREPL(repl, "^^c")
	var _, ok = repl.Store.CurrentName()
	assert.False(t, ok)
	assert.Equal(t, 2, vm.resetCount)
	assert.Contains(t, strings.Join(*sent, "|"), "user script cleared")
}

func TestREPLVersionAndIdentityCommandsReportStaticInfo(t *testing.T) {
	var repl, _, sent = newTestREPL()
	repl.HardwareID = [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	feedREPL(repl, "^^v")
	feedREPL(repl, "^^i")

	require.Len(t, *sent, 2)
	assert.Contains(t, (*sent)[0], "^^version(")
	assert.Contains(t, (*sent)[1], "^^identity(")
}
