package api

import (
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial"

	"github.com/banshee-data/emgfes/internal/httputil"
)

// SerialDeviceInfo describes a serial device that could carry the EMG board
// or the stimulator.
type SerialDeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
}

func listSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// listSerialDevices handles GET /api/serial/devices.
func (s *Server) listSerialDevices(w http.ResponseWriter, r *http.Request) {
	ports, err := s.listPorts()
	if err != nil {
		log.Printf("Error enumerating serial ports: %v", err)
		httputil.WriteJSONError(w, http.StatusInternalServerError, "Failed to enumerate serial ports")
		return
	}
	sort.Strings(ports)

	devices := make([]SerialDeviceInfo, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, SerialDeviceInfo{PortPath: p, FriendlyName: getFriendlyName(p)})
	}
	httputil.WriteJSON(w, http.StatusOK, devices)
}

// getFriendlyName generates a user-friendly name for a serial port
func getFriendlyName(portPath string) string {
	deviceName := filepath.Base(portPath)
	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return "USB Serial Adapter (" + deviceName + ")"
	case strings.HasPrefix(deviceName, "ttyACM"):
		// Arduino-class boards enumerate as CDC ACM
		return "USB CDC Device (" + deviceName + ")"
	case strings.HasPrefix(deviceName, "cu.usbmodem"), strings.HasPrefix(deviceName, "tty.usbmodem"):
		return "USB Modem (" + deviceName + ")"
	case strings.HasPrefix(deviceName, "ttyAMA"):
		return "Raspberry Pi Serial (" + deviceName + ")"
	case strings.HasPrefix(deviceName, "COM"):
		return "Windows COM Port (" + deviceName + ")"
	default:
		return deviceName
	}
}
