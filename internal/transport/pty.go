package transport

/*------------------------------------------------------------------
 *
 * Purpose:	Pseudo-terminal-backed CDC transport: exercises the exact
 *		same framed byte stream as the real serial adapter without
 *		a physical CDC device, for cmd/cvsim.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"github.com/creack/pty"
)

// PTYCDC implements platform.CDC over a pseudo-terminal pair: the module
// reads/writes the master side, and a host-side test client (or a human at
// a terminal emulator) connects to the slave side's path.
type PTYCDC struct {
	master *os.File
	slave  *os.File
}

func OpenPTY() (*PTYCDC, error) {
	var master, slave, err = pty.Open()
	if err != nil {
		return nil, fmt.Errorf("transport: opening pty: %w", err)
	}
	return &PTYCDC{master: master, slave: slave}, nil
}

// SlavePath returns the path a host tool should connect to (e.g.
// /dev/pts/7), mirroring a real CDC device node.
func (p *PTYCDC) SlavePath() string {
	return p.slave.Name()
}

func (p *PTYCDC) ReadChunk(buf []byte) (int, error) {
	return p.master.Read(buf)
}

func (p *PTYCDC) WriteChunk(data []byte) error {
	var _, err = p.master.Write(data)
	return err
}

func (p *PTYCDC) Flush() error {
	return p.master.Sync()
}

func (p *PTYCDC) Close() error {
	var err1 = p.master.Close()
	var err2 = p.slave.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
