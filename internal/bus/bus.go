package bus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/idealoop/idealoop/internal/session"
	"github.com/idealoop/idealoop/internal/store"
)

const SockName = "control.sock"
const PidName = "idealoop.pid"
const ProtoVer = "1.0"

// Commands understood by the daemon.
const (
	CmdBegin        = "begin"
	CmdRelease      = "release"
	CmdSay          = "say"
	CmdGenerate     = "generate"
	CmdCancel       = "cancel"
	CmdNew          = "new"
	CmdHistory      = "history"
	CmdCloseHistory = "close-history"
	CmdOpen         = "open"
	CmdStatus       = "status"
	CmdExport       = "export"
	CmdSubscribe    = "subscribe"
	CmdVersion      = "version"
	CmdQuit         = "quit"
)

// Event kinds streamed to subscribers and to a generate caller.
const (
	EvSummary    = "summary"
	EvFragment   = "fragment"
	EvGeneration = "generation"
	EvCompleted  = "completed"
	EvLoaded     = "loaded"
	EvFailed     = "failed"
	EvCapture    = "capture"
	// EvResync replaces events a slow subscriber missed; fetch a snapshot.
	EvResync     = "resync"
)

const maxLine = 4 << 20

type Command struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
	ID   string `json:"id,omitempty"`
}

type Event struct {
	Event    string `json:"event"`
	Text     string `json:"text,omitempty"`
	State    string `json:"state,omitempty"`
	Code     string `json:"code,omitempty"`
	RecordID string `json:"recordId,omitempty"`
}

// Response is one line sent by the daemon. Lines carrying Event are
// progress; the line without one ends the command.
type Response struct {
	OK       bool              `json:"ok"`
	Error    string            `json:"error,omitempty"`
	Session  *session.Snapshot `json:"session,omitempty"`
	Records  []store.Record    `json:"records,omitempty"`
	Started  bool              `json:"started,omitempty"`
	RecordID string            `json:"recordId,omitempty"`
	Version  string            `json:"version,omitempty"`
	Event    *Event            `json:"event,omitempty"`
}

// Err returns the daemon-side failure as an error.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return errors.New("daemon reported failure")
	}
	return errors.New(r.Error)
}

// Codec reads and writes NDJSON lines on one connection.
type Codec struct {
	conn net.Conn
	sc   *bufio.Scanner
	enc  *json.Encoder
}

func NewCodec(c net.Conn) *Codec {
	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Codec{conn: c, sc: sc, enc: json.NewEncoder(c)}
}

// Write encodes v as one line.
func (c *Codec) Write(v any) error { return c.enc.Encode(v) }

// Read decodes the next line into v. It returns io.EOF once the peer closes.
func (c *Codec) Read(v any) error {
	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	return json.Unmarshal(c.sc.Bytes(), v)
}

func (c *Codec) Close() error { return c.conn.Close() }

// Client is a connection to the daemon.
type Client struct {
	codec *Codec
}

func NewClient(c net.Conn) *Client { return &Client{codec: NewCodec(c)} }

// Dial connects to the daemon socket.
func Dial() (*Client, error) {
	c, err := dialSocket()
	if err != nil {
		return nil, err
	}
	return NewClient(c), nil
}

// Do sends cmd and waits for its final response, handing progress events to
// onEvent when it is non-nil.
func (c *Client) Do(cmd Command, onEvent func(Event)) (Response, error) {
	if err := c.codec.Write(cmd); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", cmd.Cmd, err)
	}
	for {
		var resp Response
		if err := c.codec.Read(&resp); err != nil {
			return Response{}, fmt.Errorf("read %s response: %w", cmd.Cmd, err)
		}
		if resp.Event != nil {
			if onEvent != nil {
				onEvent(*resp.Event)
			}
			continue
		}
		return resp, nil
	}
}

func (c *Client) SendCommand(cmd Command) (Response, error) {
	return c.Do(cmd, nil)
}

// ReadEvent returns the next event of a subscription.
func (c *Client) ReadEvent() (Event, error) {
	for {
		var resp Response
		if err := c.codec.Read(&resp); err != nil {
			return Event{}, err
		}
		if resp.Event != nil {
			return *resp.Event, nil
		}
	}
}

func (c *Client) Close() error { return c.codec.Close() }

// SendCommand dials, sends one command and returns its response.
func SendCommand(cmd Command) (Response, error) {
	c, err := Dial()
	if err != nil {
		return Response{}, err
	}
	defer c.Close()
	return c.SendCommand(cmd)
}

func cacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "idealoop"), nil
}

// ~/.cache/idealoop/control.sock
func getSockPath() (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

// ~/.cache/idealoop/idealoop.pid
func getPidPath() (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

func SockPath() (string, error) { return getSockPath() }

func PidPath() (string, error) { return getPidPath() }

type socketManager struct {
	path string
}

func (sm *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(sm.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sm.path) // stale socket from last run
	return net.Listen("unix", sm.path)
}

func (sm *socketManager) dial() (net.Conn, error) {
	return net.Dial("unix", sm.path)
}

func defaultSocketManager() (*socketManager, error) {
	p, err := getSockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: p}, nil
}

func Listen() (net.Listener, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return nil, err
	}
	return sm.listen()
}

func dialSocket() (net.Conn, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return nil, err
	}
	return sm.dial()
}

type pidManager struct {
	path string
}

func defaultPidManager() (*pidManager, error) {
	p, err := getPidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: p}, nil
}

// checkExisting fails if a live daemon owns the pid file. Stale or
// unreadable pid files are removed.
func (pm *pidManager) checkExisting() error {
	data, err := os.ReadFile(pm.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		_ = os.Remove(pm.path)
		return nil
	}
	if !pm.isProcessAlive(pid) {
		_ = os.Remove(pm.path)
		return nil
	}
	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (pm *pidManager) isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func (pm *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(pm.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pm.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (pm *pidManager) remove() error {
	return os.Remove(pm.path)
}

func CheckExistingDaemon() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.checkExisting()
}

func CreatePidFile() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.create()
}

func RemovePidFile() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.remove()
}
