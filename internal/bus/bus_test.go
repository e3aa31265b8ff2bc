package bus

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestPidManagerBasics(t *testing.T) {
	testPidManager := &pidManager{
		path: filepath.Join(t.TempDir(), PidName),
	}

	t.Run("create and remove PID file", func(t *testing.T) {
		if err := testPidManager.create(); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		pidData, err := os.ReadFile(testPidManager.path)
		if err != nil {
			t.Fatalf("failed to read PID file: %v", err)
		}
		expectedPid := strconv.Itoa(os.Getpid())
		if string(pidData) != expectedPid {
			t.Errorf("PID file contains %q, expected %q", string(pidData), expectedPid)
		}

		if err := testPidManager.remove(); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if _, err := os.Stat(testPidManager.path); !os.IsNotExist(err) {
			t.Error("PID file should not exist after removal")
		}
	})

	t.Run("checkExisting with no PID file", func(t *testing.T) {
		if err := testPidManager.checkExisting(); err != nil {
			t.Errorf("checkExisting should not error when no PID file exists: %v", err)
		}
	})

	t.Run("checkExisting with current process", func(t *testing.T) {
		if err := testPidManager.create(); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		defer testPidManager.remove()

		if err := testPidManager.checkExisting(); err == nil {
			t.Error("checkExisting should fail when process is running")
		}
	})

	stale := []struct {
		name    string
		content string
	}{
		{"stale PID", "99999999"},
		{"invalid PID", "invalid"},
	}
	for _, tt := range stale {
		t.Run("checkExisting with "+tt.name, func(t *testing.T) {
			if err := os.WriteFile(testPidManager.path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to write PID file: %v", err)
			}
			if err := testPidManager.checkExisting(); err != nil {
				t.Errorf("checkExisting should succeed: %v", err)
			}
			if _, err := os.Stat(testPidManager.path); !os.IsNotExist(err) {
				t.Error("PID file should be removed")
			}
		})
	}
}

func TestIsProcessAlive(t *testing.T) {
	pm := &pidManager{}

	if !pm.isProcessAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if pm.isProcessAlive(99999999) {
		t.Error("non-existent process should not be alive")
	}
}

func TestSocketManagerBasics(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}

	t.Run("dial without listener", func(t *testing.T) {
		if _, err := sm.dial(); err == nil {
			t.Error("dial should fail when no listener exists")
		}
	})

	t.Run("listen replaces stale socket", func(t *testing.T) {
		if err := os.WriteFile(sm.path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		ln, err := sm.listen()
		if err != nil {
			t.Fatalf("listen failed: %v", err)
		}
		defer ln.Close()

		go func() {
			c, err := ln.Accept()
			if err == nil {
				c.Close()
			}
		}()
		c, err := sm.dial()
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		c.Close()
	})
}

// serveOne runs handler on the server side of a fresh socket and returns a
// client connected to it.
func serveOne(t *testing.T, handler func(*Codec)) *Client {
	t.Helper()
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}
	ln, err := sm.listen()
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		codec := NewCodec(c)
		defer codec.Close()
		handler(codec)
	}()

	conn, err := sm.dial()
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	client := NewClient(conn)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClient_Do(t *testing.T) {
	client := serveOne(t, func(c *Codec) {
		for {
			var cmd Command
			if err := c.Read(&cmd); err != nil {
				return
			}
			switch cmd.Cmd {
			case CmdVersion:
				c.Write(Response{OK: true, Version: ProtoVer})
			case CmdGenerate:
				c.Write(Response{OK: true, Event: &Event{Event: EvFragment, Text: "Hook. "}})
				c.Write(Response{OK: true, Event: &Event{Event: EvFragment, Text: "Payoff."}})
				c.Write(Response{OK: true, RecordID: "rec-1"})
			case CmdOpen:
				c.Write(Response{Error: "record " + cmd.ID + " not found"})
			default:
				c.Write(Response{Error: "unknown command " + cmd.Cmd})
			}
		}
	})

	resp, err := client.SendCommand(Command{Cmd: CmdVersion})
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if resp.Version != ProtoVer || resp.Err() != nil {
		t.Errorf("version response = %+v", resp)
	}

	var script string
	resp, err = client.Do(Command{Cmd: CmdGenerate}, func(ev Event) {
		if ev.Event == EvFragment {
			script += ev.Text
		}
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if script != "Hook. Payoff." || resp.RecordID != "rec-1" {
		t.Errorf("script = %q, response = %+v", script, resp)
	}

	resp, err = client.SendCommand(Command{Cmd: CmdOpen, ID: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err() == nil || resp.Err().Error() != "record missing not found" {
		t.Errorf("open error = %v", resp.Err())
	}
}

func TestClient_ReadEvent(t *testing.T) {
	client := serveOne(t, func(c *Codec) {
		var cmd Command
		if err := c.Read(&cmd); err != nil {
			return
		}
		c.Write(Response{OK: true})
		c.Write(Response{OK: true, Event: &Event{Event: EvSummary, Text: "Trip to Japan"}})
		c.Write(Response{OK: true, Event: &Event{Event: EvCapture, State: "listening"}})
	})

	if _, err := client.SendCommand(Command{Cmd: CmdSubscribe}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ev, err := client.ReadEvent()
	if err != nil || ev.Event != EvSummary || ev.Text != "Trip to Japan" {
		t.Errorf("first event = %+v, %v", ev, err)
	}
	ev, err = client.ReadEvent()
	if err != nil || ev.State != "listening" {
		t.Errorf("second event = %+v, %v", ev, err)
	}
	if _, err := client.ReadEvent(); !errors.Is(err, io.EOF) {
		t.Errorf("after close: %v, want io.EOF", err)
	}
}

func TestResponseErr(t *testing.T) {
	if (Response{OK: true}).Err() != nil {
		t.Error("ok response should have no error")
	}
	if (Response{}).Err() == nil {
		t.Error("failed response without message should still error")
	}
}

func TestPathFunctions(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	tests := []struct {
		name string
		fn   func() (string, error)
		base string
	}{
		{"SockPath", SockPath, SockName},
		{"PidPath", PidPath, PidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := tt.fn()
			if err != nil {
				t.Fatalf("%s failed: %v", tt.name, err)
			}
			if !filepath.IsAbs(path) {
				t.Errorf("%s should return absolute path", tt.name)
			}
			if filepath.Base(path) != tt.base {
				t.Errorf("%s should end with %s, got %s", tt.name, tt.base, filepath.Base(path))
			}
			if filepath.Base(filepath.Dir(path)) != "idealoop" {
				t.Errorf("%s should live in the idealoop cache dir, got %s", tt.name, path)
			}
		})
	}
}

func TestPublicPidAPI(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	if err := CheckExistingDaemon(); err != nil {
		t.Errorf("CheckExistingDaemon should succeed when no daemon running: %v", err)
	}
	if err := CreatePidFile(); err != nil {
		t.Fatalf("CreatePidFile failed: %v", err)
	}
	if err := CheckExistingDaemon(); err == nil {
		t.Error("CheckExistingDaemon should report this process")
	}
	if err := RemovePidFile(); err != nil {
		t.Errorf("RemovePidFile failed: %v", err)
	}
}

func TestListenAndSendCommand(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	ln, err := Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		codec := NewCodec(c)
		defer codec.Close()
		var cmd Command
		if codec.Read(&cmd) == nil {
			codec.Write(Response{OK: true, Version: cmd.Cmd})
		}
	}()

	resp, err := SendCommand(Command{Cmd: CmdStatus})
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if resp.Version != CmdStatus {
		t.Errorf("server saw %q, want %q", resp.Version, CmdStatus)
	}
}
