// Package fes drives the functional electrical stimulation device.
package fes

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/banshee-data/emgfes/internal/classifier"
)

// ErrDispatch wraps a failed write to the FES port.
var ErrDispatch = errors.New("FES dispatch failed")

// CommandSender writes one newline-terminated command to the device.
// serialmux.SerialMux and serialmux.DisabledSerialMux both satisfy it.
type CommandSender interface {
	SendCommand(command string) error
}

// Dispatcher turns classifications into stimulation commands. The command
// for a movement is its class index in decimal; the idle class sends
// nothing. Commands are fire and forget: the device's replies are not read
// here.
type Dispatcher struct {
	sender CommandSender

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewDispatcher(sender CommandSender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Command returns the wire command for l, and false for the idle class.
func Command(l classifier.Label) (string, bool) {
	if l.Idle {
		return "", false
	}
	return strconv.Itoa(l.Index), true
}

// Dispatch sends the command for l, if any, and reports whether one was
// written.
func (d *Dispatcher) Dispatch(l classifier.Label) (bool, error) {
	cmd, ok := Command(l)
	if !ok {
		return false, nil
	}
	if err := d.sender.SendCommand(cmd); err != nil {
		d.failed.Add(1)
		return false, fmt.Errorf("%w: command %q for %s: %w", ErrDispatch, cmd, l.Name, err)
	}
	d.sent.Add(1)
	return true, nil
}

// Stats returns the number of commands written and failed.
func (d *Dispatcher) Stats() (sent, failed uint64) {
	return d.sent.Load(), d.failed.Load()
}
