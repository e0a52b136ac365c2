package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDisabledSerialMux_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDisabledSerialMux("fes")
	id, ch := d.Subscribe()

	d.Unsubscribe(id)
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed on unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for subscriber to be unblocked after Unsubscribe")
	}
}

func TestDisabledSerialMux_CloseClosesAllChannels(t *testing.T) {
	d := NewDisabledSerialMux("fes")
	_, ch1 := d.Subscribe()
	_, ch2 := d.Subscribe()

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for i, ch := range []chan string{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Errorf("channel %d still open after Close", i)
		}
	}

	// subscribing after close yields a closed channel
	_, ch3 := d.Subscribe()
	if _, ok := <-ch3; ok {
		t.Error("Subscribe after Close returned an open channel")
	}
}

func TestDisabledSerialMux_DropsCommands(t *testing.T) {
	var _ SerialMuxInterface = NewDisabledSerialMux("fes")
	var _ SerialMuxInterface = NewSerialMux(NewTestableSerialPort(), "fes")

	d := NewDisabledSerialMux("fes")
	for i := 0; i < 3; i++ {
		if err := d.SendCommand("1"); err != nil {
			t.Fatalf("SendCommand() error = %v", err)
		}
	}
	if got := d.Stats().CommandsSent; got != 3 {
		t.Errorf("CommandsSent = %d, want 3", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Monitor(ctx); err != context.Canceled {
		t.Errorf("Monitor() = %v, want context.Canceled", err)
	}

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/fes-disabled", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
