package classifier

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// maxFrame bounds a single worker reply.
const maxFrame = 16 << 20

// workerRequest is written to the worker's stdin, msgpack encoded behind a
// 4 byte big-endian length.
type workerRequest struct {
	ID    uint64    `msgpack:"id"`
	Shape []int     `msgpack:"shape"`
	Data  []float32 `msgpack:"data"`
}

// workerReply is read back from stdout in the same framing.
type workerReply struct {
	ID     uint64    `msgpack:"id"`
	Scores []float64 `msgpack:"scores"`
	Error  string    `msgpack:"error"`
}

// WorkerOptions configures an external inference process.
type WorkerOptions struct {
	// Command is the worker program and its leading arguments; the model
	// path is appended.
	Command []string
	// Timeout bounds each request: the stdin write and the wait for the
	// reply each get this long.
	Timeout time.Duration
}

// WorkerModel runs inference in a child process, for artifacts that need a
// runtime we do not link (Keras .h5/.keras, ONNX). Requests are serialised;
// a reply that arrives after its request timed out is discarded by ID.
type WorkerModel struct {
	path    string
	timeout time.Duration

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	mu      sync.Mutex // one request in flight
	nextID  uint64
	replies chan workerReply
	exited  chan struct{}
	waitErr error

	requests atomic.Uint64
	failures atomic.Uint64
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// StartWorker spawns the worker for the model at path.
func StartWorker(path string, opts WorkerOptions) (*WorkerModel, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("worker command is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}

	args := append(append([]string(nil), opts.Command[1:]...), path)
	cmd := exec.Command(opts.Command[0], args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start model worker: %w", err)
	}
	log.Printf("model worker started: pid=%d model=%s", cmd.Process.Pid, path)

	w := &WorkerModel{
		path:    path,
		timeout: opts.Timeout,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		replies: make(chan workerReply, 1),
		exited:  make(chan struct{}),
	}

	w.wg.Add(2)
	go w.readReplies()
	go w.logStderr(stderr)
	go w.waitProcess()
	return w, nil
}

// Predict implements Model.
func (w *WorkerModel) Predict(ctx context.Context, input []float32, shape []int) ([]float32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.requests.Add(1)
	w.nextID++
	id := w.nextID

	scores, err := w.roundTrip(ctx, workerRequest{ID: id, Shape: shape, Data: input})
	if err != nil {
		w.failures.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	return scores, nil
}

func (w *WorkerModel) roundTrip(ctx context.Context, req workerRequest) ([]float32, error) {
	payload, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal msgpack request: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		frame := make([]byte, 4+len(payload))
		binary.BigEndian.PutUint32(frame, uint32(len(payload)))
		copy(frame[4:], payload)
		_, err := w.stdin.Write(frame)
		writeErr <- err
	}()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case err := <-writeErr:
		if err != nil {
			return nil, fmt.Errorf("failed to write to worker stdin: %w", err)
		}
	case <-timer.C:
		return nil, fmt.Errorf("stdin write timeout after %v (worker may be hung)", w.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.exited:
		return nil, w.exitError()
	}

	timer.Reset(w.timeout)
	for {
		select {
		case reply := <-w.replies:
			if reply.ID != req.ID {
				// late answer to a request that already timed out
				continue
			}
			if reply.Error != "" {
				return nil, fmt.Errorf("worker: %s", reply.Error)
			}
			scores := make([]float32, len(reply.Scores))
			for i, v := range reply.Scores {
				scores[i] = float32(v)
			}
			return scores, nil
		case <-timer.C:
			return nil, fmt.Errorf("no reply within %v", w.timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.exited:
			return nil, w.exitError()
		}
	}
}

func (w *WorkerModel) exitError() error {
	if w.waitErr != nil {
		return fmt.Errorf("worker exited: %w", w.waitErr)
	}
	return errors.New("worker exited")
}

// readReplies decodes length-prefixed msgpack frames from stdout.
func (w *WorkerModel) readReplies() {
	defer w.wg.Done()

	lengthBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(w.stdout, lengthBuf); err != nil {
			if !errors.Is(err, io.EOF) && !w.closed.Load() {
				log.Printf("[model-worker] failed to read length prefix: %v", err)
			}
			return
		}
		n := binary.BigEndian.Uint32(lengthBuf)
		if n > maxFrame {
			log.Printf("[model-worker] reply of %d bytes exceeds %d, stopping reader", n, maxFrame)
			return
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(w.stdout, data); err != nil {
			log.Printf("[model-worker] failed to read reply body: %v", err)
			return
		}

		var reply workerReply
		if err := msgpack.Unmarshal(data, &reply); err != nil {
			log.Printf("[model-worker] failed to unmarshal reply (%d bytes): %v", len(data), err)
			continue
		}

		// keep only the newest reply if nobody is waiting
		select {
		case w.replies <- reply:
		default:
			select {
			case <-w.replies:
			default:
			}
			w.replies <- reply
		}
	}
}

func (w *WorkerModel) logStderr(stderr io.Reader) {
	defer w.wg.Done()
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		log.Printf("[model-worker] %s", sc.Text())
	}
}

// waitProcess reaps the child and wakes any pending request.
func (w *WorkerModel) waitProcess() {
	w.wg.Wait()
	w.waitErr = w.cmd.Wait()
	if !w.closed.Load() {
		log.Printf("model worker exited unexpectedly: %v", w.waitErr)
	}
	close(w.exited)
}

// Stats returns the request and failure counts.
func (w *WorkerModel) Stats() (requests, failures uint64) {
	return w.requests.Load(), w.failures.Load()
}

// Close asks the worker to exit by closing its stdin and kills it if it has
// not gone within the request timeout.
func (w *WorkerModel) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.stdin.Close()
	select {
	case <-w.exited:
		return nil
	case <-time.After(w.timeout):
		log.Printf("model worker did not exit within %v, killing pid %d", w.timeout, w.cmd.Process.Pid)
		w.cmd.Process.Kill()
		<-w.exited
		return nil
	}
}
