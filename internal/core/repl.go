package core

/*------------------------------------------------------------------
 *
 * Purpose:	REPL / script-upload state machine: frames bytes from the
 *		CDC transport into commands and Lua source, and drives the
 *		upload lifecycle (load, run, save, clear).
 *
 * Description:	Generalizes kiss_frame.go's byte-level framing state
 *		machine (there: FEND/escape sequences delimiting an AX.25
 *		frame; here: "^^" command sentinels and triple-backtick
 *		multi-line capture delimiting Lua source).
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"strings"

	"github.com/cv-synth/cvcore/internal/diag"
	"github.com/cv-synth/cvcore/internal/luabridge"
)

type uploadState int

const (
	stateNormal uploadState = iota
	stateReception
	stateDiscard
)

const maxLineBuffer = 512

// ReplLine is what the byte-level framer has assembled for one evaluable
// unit: either a command letter, or a chunk of Lua source (single-line or
// an accumulated multi-line capture).
type ReplLine struct {
	IsCommand bool
	Command   byte
	Source    string
}

// Framer turns a byte stream into ReplLine values. One Framer per serial
// connection; not safe for concurrent use (spec: single control-loop
// consumer).
type Framer struct {
	buf        []byte
	inMultiline bool
	backtickRun int
}

// Feed appends one byte to the line buffer and returns a completed line
// when a terminator is seen (newline for single-line, closing ``` for
// multi-line), or a parsed command the instant its sentinel completes.
// Command sentinels are recognized between fences, so a ^^-command can end
// a script upload whose lines arrived newline-terminated (spec §4.9 table);
// they are deliberately NOT recognized inside an open backtick capture, so
// a literal "^^" inside uploaded source is never mistaken for one.
func (f *Framer) Feed(b byte) (ReplLine, bool, error) {
	// `^^X` command sentinel: two carets then a letter, detected as soon
	// as the letter arrives, without needing a line terminator.
	if !f.inMultiline && len(f.buf) >= 2 && f.buf[len(f.buf)-2] == '^' && f.buf[len(f.buf)-1] == '^' && isCommandLetter(b) {
		var cmd = b
		f.buf = f.buf[:len(f.buf)-2]
		return ReplLine{IsCommand: true, Command: cmd}, true, nil
	}

	if b == '`' {
		f.backtickRun++
		if f.backtickRun == 3 {
			f.backtickRun = 0
			if f.inMultiline {
				f.inMultiline = false
				// The first two ticks of this closing fence were appended
				// to buf speculatively (a lone backtick, or two, inside
				// the capture is ordinary content until a third confirms
				// a fence); strip them now that the fence is confirmed.
				f.buf = f.buf[:len(f.buf)-2]
				var src = string(f.buf)
				f.buf = f.buf[:0]
				return ReplLine{Source: src}, true, nil
			}
			f.inMultiline = true
			f.buf = f.buf[:0]
			return ReplLine{}, false, nil
		}
		f.buf = append(f.buf, b)
		return f.checkOverflow()
	}
	f.backtickRun = 0

	if b == '\n' && !f.inMultiline {
		var src = strings.TrimRight(string(f.buf), "\r")
		f.buf = f.buf[:0]
		return ReplLine{Source: src}, true, nil
	}

	f.buf = append(f.buf, b)
	return f.checkOverflow()
}

func (f *Framer) checkOverflow() (ReplLine, bool, error) {
	if len(f.buf) > maxLineBuffer {
		f.buf = f.buf[:0]
		f.inMultiline = false
		f.backtickRun = 0
		return ReplLine{}, false, fmt.Errorf("chunk too long")
	}
	return ReplLine{}, false, nil
}

func isCommandLetter(b byte) bool {
	switch b {
	case 'v', 'i', 'p', 'r', 'k', 'b', 's', 'e', 'w', 'c', 'f', 'd':
		return true
	default:
		return false
	}
}

// REPL drives the upload state machine and command execution. Owns a
// Framer, the accumulated upload buffer, and the flash-backed script store.
type REPL struct {
	framer Framer
	state  uploadState

	uploadBuf strings.Builder

	VM    luabridge.VM
	Store *ScriptStore

	FirmwareName string
	FirmwareVer  string
	HardwareID   [8]byte

	// ResetHook performs the full reset spec 4.9 requires before
	// end-upload/flash-clear/load-default: stop metros, clear detectors,
	// cancel clocks, zero slopes, clear noise, empty event queues.
	ResetHook func()

	Tx func(line string)
}

func NewREPL(vm luabridge.VM, store *ScriptStore) *REPL {
	return &REPL{VM: vm, Store: store, FirmwareName: "cv4", FirmwareVer: "1.0"}
}

func (r *REPL) send(line string) {
	if r.Tx != nil {
		r.Tx(line + "\n\r")
	}
}

// FeedByte processes one byte from the transport; call once per received
// byte in the control loop.
func (r *REPL) FeedByte(b byte) {
	var line, complete, err = r.framer.Feed(b)
	if err != nil {
		diag.REPL.Warn("buffer overflow", "err", err)
		r.send("chunk too long")
		r.state = stateDiscard
		return
	}
	if !complete {
		return
	}

	if line.IsCommand {
		r.runCommand(line.Command)
		return
	}

	r.handleSource(line.Source)
}

func (r *REPL) handleSource(src string) {
	switch r.state {
	case stateNormal:
		r.evalNow(src)

	case stateReception:
		r.uploadBuf.WriteString(src)
		r.uploadBuf.WriteString("\n")

	case stateDiscard:
		// discard further data until end-upload/flash-upload
	}
}

func (r *REPL) evalNow(src string) {
	if err := r.VM.DoString(src); err != nil {
		diag.REPL.Error(err.Error())
		r.send(err.Error())
	}
}

func (r *REPL) runCommand(cmd byte) {
	switch cmd {
	case 'v':
		r.send(fmt.Sprintf("^^version('%s-%s')", r.FirmwareName, r.FirmwareVer))

	case 'i':
		r.send(fmt.Sprintf("^^identity('0x%x')", r.HardwareID))

	case 'p':
		if name, ok := r.Store.CurrentName(); ok {
			r.send("Running: " + name)
		} else {
			r.send("No user script.")
		}

	case 'r':
		r.send("reset requested; power-cycle the module to apply")

	case 'k':
		r.softReset()
		r.send("soft reset complete")

	case 'b':
		r.send("this platform has no bootloader command")

	case 's':
		r.state = stateReception
		r.uploadBuf.Reset()
		r.send("script upload started")

	case 'e':
		r.endUpload(false)

	case 'w':
		r.endUpload(true)

	case 'c':
		r.Store.Clear()
		r.softReset()
		r.send("user script cleared; reset to apply")

	case 'f':
		r.softReset()
		if err := r.VM.DoString(r.Store.DefaultSource()); err != nil {
			diag.REPL.Error(err.Error())
		} else {
			r.VM.CallGlobal("init")
		}
		r.send("default script loaded")

	case 'd':
		r.send(r.diagnosticLine())
	}
}

func (r *REPL) softReset() {
	if r.ResetHook != nil {
		r.ResetHook()
	}
	r.VM.Reset()
}

// endUpload implements both `^^e` (run in RAM) and `^^w` (save to flash),
// which share the same reset-then-run sequence (spec 4.9).
func (r *REPL) endUpload(toFlash bool) {
	if r.state == stateDiscard {
		r.state = stateNormal
		r.send("upload failed")
		return
	}

	var src = r.uploadBuf.String()
	r.uploadBuf.Reset()
	r.state = stateNormal

	r.softReset()

	if toFlash {
		var name = extractScriptName(src)
		if err := r.Store.SaveUser(src, name); err != nil {
			diag.REPL.Error("flash write failed", "err", err)
			r.send("flash write failed")
			return
		}
		r.send("script saved; reset to run it")
		return
	}

	if err := r.VM.DoString(src); err != nil {
		diag.REPL.Error(err.Error())
		r.send(err.Error())
		return
	}
	r.VM.CallGlobal("init")
	r.send("^^ready()")
}

// extractScriptName pulls a name from a leading `-- name.lua` comment, if
// present (spec 4.9, 6.2).
func extractScriptName(src string) string {
	var firstLine, _, _ = strings.Cut(src, "\n")
	firstLine = strings.TrimSpace(firstLine)
	if !strings.HasPrefix(firstLine, "--") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(firstLine, "--"))
}

func (r *REPL) diagnosticLine() string {
	return "ok"
}
