package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"strings"

	"github.com/idealoop/idealoop/internal/bus"
	"github.com/idealoop/idealoop/internal/notify"
)

var errNoScript = errors.New("no script to export: run generate first")

func fail(err error) bus.Response {
	return bus.Response{Error: err.Error()}
}

func (d *Daemon) snapshot() bus.Response {
	snap := d.ctrl.Snapshot()
	return bus.Response{OK: true, Session: &snap}
}

// handle serves one client. A client may send any number of commands; one
// that began a capture and disconnects without releasing releases it.
func (d *Daemon) handle(c net.Conn) {
	codec := bus.NewCodec(c)
	defer codec.Close()
	stop := context.AfterFunc(d.ctx, func() { c.Close() })
	defer stop()

	held := false
	defer func() {
		if held {
			log.Printf("Daemon: client disconnected while holding, releasing capture")
			d.capture.Release()
		}
	}()

	for {
		var cmd bus.Command
		if err := codec.Read(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if codec.Write(bus.Response{Error: "malformed command: " + err.Error()}) != nil {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) && d.ctx.Err() == nil {
				log.Printf("Client read error: %v", err)
			}
			return
		}

		var resp bus.Response
		switch cmd.Cmd {
		case bus.CmdSubscribe:
			d.streamEvents(codec, c)
			return
		case bus.CmdGenerate:
			resp = d.generate(codec)
		case bus.CmdBegin:
			started, err := d.begin()
			if err != nil {
				resp = fail(err)
			} else {
				held = held || started
				resp = bus.Response{OK: true, Started: started}
			}
		case bus.CmdRelease:
			d.capture.Release()
			held = false
			resp = bus.Response{OK: true}
		default:
			resp = d.dispatch(cmd)
		}

		if err := codec.Write(resp); err != nil {
			log.Printf("Client write error: %v", err)
			return
		}
		if cmd.Cmd == bus.CmdQuit {
			d.cancel()
			return
		}
	}
}

func (d *Daemon) dispatch(cmd bus.Command) bus.Response {
	ctx := d.ctx

	switch cmd.Cmd {
	case bus.CmdSay:
		if err := d.ctrl.AcceptChunk(ctx, cmd.Text); err != nil {
			return fail(err)
		}
		return d.snapshot()

	case bus.CmdCancel:
		d.ctrl.CancelGeneration()
		return d.snapshot()

	case bus.CmdNew:
		d.ctrl.NewIdea()
		return d.snapshot()

	case bus.CmdHistory:
		recs, err := d.ctrl.OpenHistory(ctx)
		if err != nil {
			return fail(err)
		}
		snap := d.ctrl.Snapshot()
		return bus.Response{OK: true, Records: recs, Session: &snap}

	case bus.CmdCloseHistory:
		d.ctrl.CloseHistory()
		return d.snapshot()

	case bus.CmdOpen:
		if cmd.ID == "" {
			return fail(errors.New("open requires a record id"))
		}
		rec, err := d.ctrl.SelectRecord(ctx, cmd.ID)
		if err != nil {
			return fail(err)
		}
		resp := d.snapshot()
		resp.RecordID = rec.ID
		return resp

	case bus.CmdStatus:
		return d.snapshot()

	case bus.CmdExport:
		return d.export(ctx)

	case bus.CmdVersion:
		return bus.Response{OK: true, Version: bus.ProtoVer}

	case bus.CmdQuit:
		return bus.Response{OK: true}

	default:
		log.Printf("Unknown command: %q", cmd.Cmd)
		return bus.Response{Error: "unknown command: " + cmd.Cmd}
	}
}

// generate runs one generation, streaming its events to the caller before
// the final response. The caller's feed is lossless.
func (d *Daemon) generate(codec *bus.Codec) bus.Response {
	sub := d.subscribe(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		broken := false
		for range sub.ready {
			evs, closed := sub.drain()
			for _, ev := range evs {
				if broken || ev.Event == bus.EvCapture {
					continue
				}
				if err := codec.Write(bus.Response{OK: true, Event: &ev}); err != nil {
					log.Printf("Client write error during generate: %v", err)
					broken = true
				}
			}
			if closed {
				return
			}
		}
	}()

	res, err := d.ctrl.Generate(d.ctx)
	d.unsubscribe(sub)
	<-done

	snap := d.ctrl.Snapshot()
	if err != nil {
		return bus.Response{Error: err.Error(), Session: &snap}
	}
	return bus.Response{OK: true, Session: &snap, RecordID: res.RecordID}
}

// streamEvents turns the connection into an event feed until the client
// goes away or the daemon stops.
func (d *Daemon) streamEvents(codec *bus.Codec, c net.Conn) {
	sub := d.subscribe(false)
	defer d.unsubscribe(sub)

	snap := d.ctrl.Snapshot()
	if err := codec.Write(bus.Response{OK: true, Session: &snap}); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, c)
		close(gone)
	}()

	for {
		select {
		case <-sub.ready:
			evs, _ := sub.drain()
			for _, ev := range evs {
				if err := codec.Write(bus.Response{OK: true, Event: &ev}); err != nil {
					return
				}
			}
		case <-gone:
			return
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Daemon) export(ctx context.Context) bus.Response {
	script := d.ctrl.Snapshot().Script
	if strings.TrimSpace(script) == "" {
		return fail(errNoScript)
	}
	if d.injector == nil {
		return fail(errors.New("export is not configured"))
	}
	if err := d.injector.Inject(ctx, script); err != nil {
		return fail(err)
	}
	d.notify(notify.MsgExported, "")
	return bus.Response{OK: true}
}
