package serialmux

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
)

// DisabledSerialMux is a no-op SerialMuxInterface used when no FES device is
// attached (-disable-fes). Commands are counted and dropped so the rest of
// the pipeline runs unchanged. Subscribers are tracked so their channels can
// be closed on Unsubscribe() or Close(), letting readers unblock during
// shutdown.
type DisabledSerialMux struct {
	name        string
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
	dropped     atomic.Uint64
}

func NewDisabledSerialMux(name string) *DisabledSerialMux {
	return &DisabledSerialMux{
		name:        name,
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

// SendCommand drops the command. The first one is logged so a missing device
// is visible.
func (d *DisabledSerialMux) SendCommand(command string) error {
	if d.dropped.Add(1) == 1 {
		log.Printf("%s serial disabled, dropping command %q and all that follow", d.name, command)
	}
	return nil
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

// Stats reports dropped commands as sent so dispatch counts still add up.
func (d *DisabledSerialMux) Stats() PortStats {
	return PortStats{Name: d.name, CommandsSent: d.dropped.Load()}
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/"+d.name+"-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(d.name + " serial disabled"))
	})
}
