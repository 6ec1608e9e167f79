package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultConfidence is the detection and tracking threshold handed to the worker.
	DefaultConfidence = 0.5

	defaultFrameTimeout = 10 * time.Second
	stopTimeout         = 2 * time.Second
	maxMessageSize      = 64 << 20
	frameFormatRGB24    = "rgb24"
)

// WorkerConfig describes the external pose landmark worker.
//
// The worker reads length-prefixed msgpack requests on stdin and answers each
// one on stdout, in order. Every message is a 4-byte big-endian length followed
// by the msgpack payload.
//
//	request:  {"seq": 12, "width": 1280, "height": 720, "format": "rgb24", "frame_data": <bytes>}
//	response: {"seq": 12, "detected": true, "landmarks": [[x, y, z, visibility], ...33]}
//
// A response with a non-empty "error" field aborts the extraction. Lines the
// worker writes to stderr are forwarded to the log.
type WorkerConfig struct {
	Command                string
	Args                   []string
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
	// FrameTimeout bounds a single request/response exchange.
	FrameTimeout time.Duration
}

type detectRequest struct {
	Seq       int    `msgpack:"seq"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Format    string `msgpack:"format"`
	FrameData []byte `msgpack:"frame_data"`
}

type detectResponse struct {
	Seq       int         `msgpack:"seq"`
	Detected  bool        `msgpack:"detected"`
	Landmarks [][]float64 `msgpack:"landmarks"`
	Error     string      `msgpack:"error,omitempty"`
}

// ProcessDetectorFactory starts one worker process per video so that the
// worker's tracking state never leaks between videos.
type ProcessDetectorFactory struct {
	cfg WorkerConfig
	log *slog.Logger
}

// NewProcessDetectorFactory validates cfg and fills in defaults.
func NewProcessDetectorFactory(cfg WorkerConfig, log *slog.Logger) (*ProcessDetectorFactory, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("pose worker command is required")
	}
	if cfg.MinDetectionConfidence <= 0 || cfg.MinDetectionConfidence > 1 {
		cfg.MinDetectionConfidence = DefaultConfidence
	}
	if cfg.MinTrackingConfidence <= 0 || cfg.MinTrackingConfidence > 1 {
		cfg.MinTrackingConfidence = DefaultConfidence
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = defaultFrameTimeout
	}
	return &ProcessDetectorFactory{cfg: cfg, log: log}, nil
}

// Open spawns a worker process bound to ctx.
func (f *ProcessDetectorFactory) Open(ctx context.Context) (Detector, error) {
	args := append([]string{}, f.cfg.Args...)
	args = append(args,
		"--min-detection-confidence", strconv.FormatFloat(f.cfg.MinDetectionConfidence, 'f', 2, 64),
		"--min-tracking-confidence", strconv.FormatFloat(f.cfg.MinTrackingConfidence, 'f', 2, 64),
	)
	cmd := exec.CommandContext(ctx, f.cfg.Command, args...)

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
		return nil, fmt.Errorf("failed to start pose worker: %w", err)
	}

	f.log.Debug("pose worker spawned",
		slog.String("command", f.cfg.Command),
		slog.Int("pid", cmd.Process.Pid))

	d := &ProcessDetector{
		streamDetector: newStreamDetector(stdin, bufio.NewReader(stdout), f.cfg.FrameTimeout),
		cmd:            cmd,
		stdin:          stdin,
		stderrDone:     make(chan struct{}),
		log:            f.log,
	}
	go d.logStderr(stderr)
	return d, nil
}

// ProcessDetector is a Detector backed by a running worker process.
type ProcessDetector struct {
	*streamDetector

	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stderrDone chan struct{}
	log        *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Close ends the worker by closing its stdin, killing it if it does not exit in time.
func (d *ProcessDetector) Close() error {
	d.closeOnce.Do(func() {
		_ = d.stdin.Close()

		waitErr := make(chan error, 1)
		go func() {
			<-d.stderrDone
			waitErr <- d.cmd.Wait()
		}()

		select {
		case err := <-waitErr:
			if err != nil {
				d.closeErr = fmt.Errorf("pose worker exited: %w", err)
			}
		case <-time.After(stopTimeout):
			_ = d.cmd.Process.Kill()
			<-waitErr
			d.closeErr = fmt.Errorf("pose worker did not exit within %s, killed", stopTimeout)
		}
	})
	return d.closeErr
}

func (d *ProcessDetector) logStderr(r io.Reader) {
	defer close(d.stderrDone)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			d.log.Error("pose worker", slog.String("line", line))
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			d.log.Warn("pose worker", slog.String("line", line))
		default:
			d.log.Debug("pose worker", slog.String("line", line))
		}
	}
}

// streamDetector speaks the worker protocol over an arbitrary reader/writer pair.
type streamDetector struct {
	w       io.Writer
	r       io.Reader
	timeout time.Duration

	// broken is set once an exchange fails; the stream is out of sync after that.
	broken error
}

func newStreamDetector(w io.Writer, r io.Reader, timeout time.Duration) *streamDetector {
	if timeout <= 0 {
		timeout = defaultFrameTimeout
	}
	return &streamDetector{w: w, r: r, timeout: timeout}
}

// Detect implements Detector.Detect.
func (s *streamDetector) Detect(ctx context.Context, f Frame) (FramePose, error) {
	if s.broken != nil {
		return FramePose{}, s.broken
	}

	type result struct {
		fp  FramePose
		err error
	}
	done := make(chan result, 1)
	go func() {
		fp, err := s.exchange(f)
		done <- result{fp, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			s.broken = res.err
		}
		return res.fp, res.err
	case <-timer.C:
		s.broken = fmt.Errorf("pose worker did not answer frame %d within %s", f.Seq, s.timeout)
		return FramePose{}, s.broken
	case <-ctx.Done():
		s.broken = ctx.Err()
		return FramePose{}, s.broken
	}
}

// Close implements Detector.Close.
func (s *streamDetector) Close() error {
	return nil
}

func (s *streamDetector) exchange(f Frame) (FramePose, error) {
	req := detectRequest{
		Seq:       f.Seq,
		Width:     f.Width,
		Height:    f.Height,
		Format:    frameFormatRGB24,
		FrameData: f.Data,
	}
	if err := writeMessage(s.w, req); err != nil {
		return FramePose{}, fmt.Errorf("send frame %d: %w", f.Seq, err)
	}

	var resp detectResponse
	if err := readMessage(s.r, &resp); err != nil {
		return FramePose{}, fmt.Errorf("read result for frame %d: %w", f.Seq, err)
	}
	if resp.Error != "" {
		return FramePose{}, fmt.Errorf("pose worker: %s", resp.Error)
	}
	if resp.Seq != f.Seq {
		return FramePose{}, fmt.Errorf("pose worker out of sync: sent frame %d, got %d", f.Seq, resp.Seq)
	}
	if !resp.Detected {
		return FramePose{}, nil
	}
	return FrameFromValues(resp.Landmarks)
}

// writeMessage writes v as a length-prefixed msgpack message.
func writeMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal msgpack: %w", err)
	}
	if len(payload) > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit %d", len(payload), maxMessageSize)
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	_, err = w.Write(buf)
	return err
}

// readMessage reads one length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit %d", n, maxMessageSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal msgpack: %w", err)
	}
	return nil
}
