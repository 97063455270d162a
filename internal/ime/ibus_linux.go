//go:build linux

package ime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"copyx/internal/expander"
	"copyx/internal/keystroke"
	"copyx/internal/logging"
)

// IBusEngine is an IBus engine object that feeds key presses to the
// expander and applies its edits to the focused client.
type IBusEngine struct {
	conn   *dbus.Conn
	loop   *expander.Loop
	logger *slog.Logger
	config Config

	mu       sync.RWMutex
	path     dbus.ObjectPath
	enabled  bool
	surface  keystroke.SurfaceID
	focusSeq uint64
	caps     uint32
	text     *SurroundingText

	stats Stats
}

// Stats counts engine activity.
type Stats struct {
	KeyEvents    uint64
	Suppressed   uint64
	FocusChanges uint64
	LastKey      time.Time
}

// NewIBusEngine returns an engine dispatching to loop. Call Start to
// register it on the bus.
func NewIBusEngine(loop *expander.Loop, cfg Config, logger *slog.Logger) *IBusEngine {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	e := &IBusEngine{
		loop:    loop,
		logger:  logging.OrDiscard(logger),
		config:  cfg,
		enabled: true,
	}
	e.text = NewSurroundingText(e, cfg.SkipPasswordFields)
	return e
}

func busAddress(cfg Config) string {
	if cfg.Address != "" {
		return cfg.Address
	}
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr
	}
	out, err := exec.Command("ibus", "address").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Start connects to IBus, claims the bus name and exports the factory.
func (e *IBusEngine) Start(ctx context.Context) error {
	var err error
	if addr := busAddress(e.config); addr != "" {
		e.conn, err = dbus.Connect(addr)
	} else {
		e.conn, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		return fmt.Errorf("connect to ibus: %w", err)
	}

	reply, err := e.conn.RequestName(e.config.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		e.conn.Close()
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		e.conn.Close()
		return errors.New("bus name already taken")
	}

	factory := &ibusFactory{engine: e}
	if err := e.conn.Export(factory, IBusFactoryPath, IBusFactoryInterface); err != nil {
		e.conn.Close()
		return fmt.Errorf("export factory: %w", err)
	}

	go func() {
		<-ctx.Done()
		e.Stop()
	}()

	e.logger.Info("ibus engine started", "bus_name", e.config.BusName, "engine", e.config.EngineName)
	return nil
}

// Stop closes the bus connection.
func (e *IBusEngine) Stop() error {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (e *IBusEngine) currentSurface() keystroke.SurfaceID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.enabled {
		return keystroke.NoSurface
	}
	return e.surface
}

// ProcessKeyEvent handles key presses from IBus. It returns true when the
// key was consumed.
func (e *IBusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	ev, release := KeyEvent(keyval, state, e.currentSurface(), time.Now())
	if release {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.DispatchTimeout)
	defer cancel()

	d, err := e.loop.Dispatch(ctx, expander.KeyEvent{Event: ev, Target: e.text})
	if err != nil {
		e.logger.Warn("key dispatch failed, passing key through", "error", err)
		return false, nil
	}

	e.mu.Lock()
	e.stats.KeyEvents++
	e.stats.LastKey = ev.Time
	if d.Suppress {
		e.stats.Suppressed++
	}
	e.mu.Unlock()

	return d.Suppress, nil
}

// FocusIn starts a new surface. Anything typed elsewhere is forgotten.
func (e *IBusEngine) FocusIn() *dbus.Error {
	e.mu.Lock()
	e.focusSeq++
	e.surface = keystroke.SurfaceID(fmt.Sprintf("ibus-%d", e.focusSeq))
	e.stats.FocusChanges++
	e.mu.Unlock()

	e.text.Forget()
	e.requireSurroundingText()
	return nil
}

// FocusOut leaves no editable surface.
func (e *IBusEngine) FocusOut() *dbus.Error {
	e.mu.Lock()
	e.surface = keystroke.NoSurface
	e.mu.Unlock()

	e.text.Forget()
	e.clearBuffer()
	return nil
}

// clearBuffer drops what was typed so far once the keys already dispatched
// have been handled.
func (e *IBusEngine) clearBuffer() {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.DispatchTimeout)
	defer cancel()
	if err := e.loop.Reset(ctx); err != nil {
		e.logger.Debug("keystroke buffer reset skipped", "error", err)
	}
}

func (e *IBusEngine) Enable() *dbus.Error {
	e.mu.Lock()
	e.enabled = true
	e.mu.Unlock()
	e.requireSurroundingText()
	return nil
}

func (e *IBusEngine) Disable() *dbus.Error {
	e.mu.Lock()
	e.enabled = false
	e.mu.Unlock()
	return nil
}

// Reset is sent when the client moves the cursor or otherwise invalidates
// what was typed.
func (e *IBusEngine) Reset() *dbus.Error {
	e.mu.Lock()
	e.focusSeq++
	if e.surface != keystroke.NoSurface {
		e.surface = keystroke.SurfaceID(fmt.Sprintf("ibus-%d", e.focusSeq))
	}
	e.mu.Unlock()
	e.clearBuffer()
	return nil
}

func (e *IBusEngine) SetCapabilities(caps uint32) *dbus.Error {
	e.mu.Lock()
	e.caps = caps
	e.mu.Unlock()
	if caps&IBusCapSurroundingText == 0 {
		e.logger.Debug("client does not report surrounding text; shortcuts will not expand")
	}
	return nil
}

func (e *IBusEngine) SetContentType(purpose, hints uint32) *dbus.Error {
	e.text.SetPurpose(purpose)
	return nil
}

func (e *IBusEngine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	s, err := textFromVariant(text)
	if err != nil {
		e.logger.Debug("ignoring surrounding text", "error", err)
		return nil
	}
	e.text.Update(s, int(cursorPos), int(anchorPos))
	return nil
}

func (e *IBusEngine) SetCursorLocation(x, y, w, h int32) *dbus.Error           { return nil }
func (e *IBusEngine) PropertyActivate(name string, state uint32) *dbus.Error   { return nil }
func (e *IBusEngine) PageUp() *dbus.Error                                      { return nil }
func (e *IBusEngine) PageDown() *dbus.Error                                    { return nil }
func (e *IBusEngine) CursorUp() *dbus.Error                                    { return nil }
func (e *IBusEngine) CursorDown() *dbus.Error                                  { return nil }
func (e *IBusEngine) CandidateClicked(index, button, state uint32) *dbus.Error { return nil }

// Destroy is called when IBus drops the engine instance.
func (e *IBusEngine) Destroy() *dbus.Error {
	e.text.Forget()
	return nil
}

// Stats returns a copy of the engine counters.
func (e *IBusEngine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

func (e *IBusEngine) emit(signal string, values ...interface{}) {
	e.mu.RLock()
	conn, path := e.conn, e.path
	e.mu.RUnlock()
	if conn == nil || path == "" {
		return
	}
	if err := conn.Emit(path, IBusEngineInterface+"."+signal, values...); err != nil {
		e.logger.Warn("emit ibus signal", "signal", signal, "error", err)
	}
}

func (e *IBusEngine) requireSurroundingText() {
	e.emit("RequireSurroundingText")
}

// DeleteSurroundingText implements Editor.
func (e *IBusEngine) DeleteSurroundingText(offset, n int) {
	e.emit("DeleteSurroundingText", int32(offset), uint32(n))
}

// CommitText implements Editor.
func (e *IBusEngine) CommitText(text string) {
	e.emit("CommitText", newIBusText(text))
}

// MoveCaret implements Editor by forwarding arrow key presses.
func (e *IBusEngine) MoveCaret(n int) {
	keyval := uint32(KeysymLeft)
	keycode := KeycodeLeft
	if n > 0 {
		keyval, keycode = KeysymLeft+2, KeycodeLeft+1 // Right
	} else {
		n = -n
	}
	for i := 0; i < n; i++ {
		e.emit("ForwardKeyEvent", keyval, keycode, uint32(0))
		e.emit("ForwardKeyEvent", keyval, keycode, IBusReleaseMask)
	}
}

// ibusFactory implements org.freedesktop.IBus.Factory.
type ibusFactory struct {
	engine *IBusEngine
	seq    uint32
}

// CreateEngine exports the engine at a fresh object path.
func (f *ibusFactory) CreateEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	e := f.engine
	if name != e.config.EngineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]interface{}{"unknown engine: " + name})
	}

	f.seq++
	path := dbus.ObjectPath(fmt.Sprintf("%s/Engine/%d", IBusPath, f.seq))

	e.mu.Lock()
	conn := e.conn
	e.path = path
	e.mu.Unlock()
	if conn == nil {
		return "", dbus.MakeFailedError(errors.New("engine stopped"))
	}
	if err := conn.Export(e, path, IBusEngineInterface); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	e.logger.Info("ibus engine created", "path", path)
	return path, nil
}

// restartIBus makes ibus-daemon reread its component files.
var restartIBus = func() {
	_ = exec.Command("ibus", "restart").Run()
}
