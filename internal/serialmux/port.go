package serialmux

import (
	"io"

	"go.bug.st/serial"
)

// SerialPorter is the part of a serial port the mux needs, so tests can run
// without hardware.
type SerialPorter interface {
	io.ReadWriteCloser
}

// OpenPort opens the serial device at path and wraps it in a mux.
func OpenPort(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewSerialMux[serial.Port](port), nil
}
