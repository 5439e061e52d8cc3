package monitoring

import (
	"fmt"

	"go.bug.st/serial"
)

// AttachSerial opens a serial port and mirrors the log onto it, the console
// an operator plugs into when the device halts. The returned port must be
// closed on shutdown.
func AttachSerial(name string, baud int) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial console %s: %w", name, err)
	}
	AddOutput(port)
	Logger().WithField("port", name).Info("serial console attached")
	return port, nil
}

// SerialPorts lists the ports available for AttachSerial.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
