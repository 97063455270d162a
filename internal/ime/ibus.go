package ime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"copyx/internal/keystroke"
	"copyx/internal/placeholder"
)

// ErrUnsupported is returned by Start where IBus is not available.
var ErrUnsupported = errors.New("input method engine not supported on this platform")

// IBus D-Bus names.
const (
	IBusPath             = "/org/freedesktop/IBus"
	IBusFactoryPath      = "/org/freedesktop/IBus/Factory"
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
	EngineVersion        = "1.0.0"
)

// IBus key event state masks.
const (
	IBusShiftMask   uint32 = 1 << 0
	IBusLockMask    uint32 = 1 << 1
	IBusControlMask uint32 = 1 << 2
	IBusMod1Mask    uint32 = 1 << 3 // Alt
	IBusMod4Mask    uint32 = 1 << 6 // Super
	IBusSuperMask   uint32 = 1 << 26
	IBusMetaMask    uint32 = 1 << 28
	IBusReleaseMask uint32 = 1 << 30
)

// IBus client capabilities.
const (
	IBusCapPreeditText     uint32 = 1 << 0
	IBusCapFocus           uint32 = 1 << 3
	IBusCapSurroundingText uint32 = 1 << 5
)

// IBus input purposes sent with SetContentType.
const (
	PurposeFreeForm uint32 = 0
	PurposePassword uint32 = 8
	PurposePIN      uint32 = 9
)

// X keysyms.
const (
	KeysymSpace      = 0x0020
	KeysymBackSpace  = 0xff08
	KeysymTab        = 0xff09
	KeysymReturn     = 0xff0d
	KeysymEscape     = 0xff1b
	KeysymHome       = 0xff50
	KeysymLeft       = 0xff51
	KeysymBegin      = 0xff58
	KeysymKPEnter    = 0xff8d
	KeysymF1         = 0xffbe
	KeysymF35        = 0xffe0
	KeysymShiftL     = 0xffe1
	KeysymHyperR     = 0xffee
	KeysymDelete     = 0xffff
	KeysymISOLeftTab = 0xfe20
	KeysymISOLevel3  = 0xfe03
	KeysymISOLevel5  = 0xfe11
)

// KeycodeLeft is the evdev keycode of the Left arrow.
const KeycodeLeft uint32 = 105

// keyvalToRune converts an X keysym to the character it types, or 0.
func keyvalToRune(keyval uint32) rune {
	switch {
	case keyval >= 0x20 && keyval <= 0x7e:
		return rune(keyval)
	case keyval >= 0xa0 && keyval <= 0xff:
		return rune(keyval)
	case keyval >= 0x01000000 && keyval <= 0x0110ffff:
		return rune(keyval - 0x01000000)
	}
	return 0
}

func modifiersFromState(state uint32) keystroke.Modifiers {
	return keystroke.Modifiers{
		Shift:    state&IBusShiftMask != 0,
		Control:  state&IBusControlMask != 0,
		Alt:      state&IBusMod1Mask != 0,
		Command:  state&(IBusMod4Mask|IBusSuperMask|IBusMetaMask) != 0,
		CapsLock: state&IBusLockMask != 0,
	}
}

// KeyEvent converts an IBus key event. release reports a key release, which
// the expander does not see.
func KeyEvent(keyval, state uint32, surface keystroke.SurfaceID, at time.Time) (ev keystroke.Event, release bool) {
	ev = keystroke.Event{
		Modifiers: modifiersFromState(state),
		Surface:   surface,
		Time:      at,
	}

	switch {
	case keyval == KeysymSpace:
		ev.Key, ev.Rune = keystroke.KeySpace, ' '
	case keyval == KeysymReturn || keyval == KeysymKPEnter:
		ev.Key = keystroke.KeyEnter
	case keyval == KeysymTab || keyval == KeysymISOLeftTab:
		ev.Key = keystroke.KeyTab
	case keyval == KeysymBackSpace:
		ev.Key = keystroke.KeyBackspace
	case keyval == KeysymDelete:
		ev.Key = keystroke.KeyDelete
	case keyval == KeysymEscape:
		ev.Key = keystroke.KeyEscape
	case keyval >= KeysymHome && keyval <= KeysymBegin:
		ev.Key = keystroke.KeyNavigation
	case keyval >= KeysymShiftL && keyval <= KeysymHyperR,
		keyval >= KeysymISOLevel3 && keyval <= KeysymISOLevel5:
		ev.Key = keystroke.KeyModifier
	case keyval >= KeysymF1 && keyval <= KeysymF35:
		ev.Key = keystroke.KeyFunction
	default:
		if r := keyvalToRune(keyval); r != 0 {
			ev.Key, ev.Rune = keystroke.KeyCharacter, r
		}
	}
	return ev, state&IBusReleaseMask != 0
}

// ibusText is the D-Bus form of an IBusText: (sa{sv}sv).
type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

// ibusAttrList is the D-Bus form of an empty IBusAttrList: (sa{sv}av).
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

func newIBusText(text string) dbus.Variant {
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        text,
		AttrList: dbus.MakeVariant(ibusAttrList{
			Name:        "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attributes:  []dbus.Variant{},
		}),
	})
}

// textFromVariant extracts the string of a serialized IBusText.
func textFromVariant(v dbus.Variant) (string, error) {
	switch val := v.Value().(type) {
	case string:
		return val, nil
	case []interface{}:
		if len(val) >= 3 {
			if name, _ := val[0].(string); name == "IBusText" {
				if s, ok := val[2].(string); ok {
					return s, nil
				}
			}
		}
	case ibusText:
		return val.Text, nil
	}
	return "", fmt.Errorf("not an IBusText: %s", v.Signature())
}

// Config configures the IBus engine.
type Config struct {
	BusName    string
	EngineName string

	// SkipPasswordFields refuses to edit password and PIN fields.
	SkipPasswordFields bool

	// DispatchTimeout bounds how long a key press waits for a decision. A
	// key that times out is passed through to the client, so it must
	// outlast an expansion's clipboard read. See DispatchTimeoutFor.
	DispatchTimeout time.Duration

	// Address is the IBus bus address. Empty means IBUS_ADDRESS, then
	// `ibus address`, then the session bus.
	Address string
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		BusName:            "org.freedesktop.IBus.Copyx",
		EngineName:         "copyx",
		SkipPasswordFields: true,
		DispatchTimeout:    DispatchTimeoutFor(placeholder.DefaultClipboardTimeout),
	}
}

// dispatchMargin is the time a key press may wait beyond the clipboard
// read for the loop to finish the edit in flight.
const dispatchMargin = 250 * time.Millisecond

// DispatchTimeoutFor returns a DispatchTimeout that outlasts a clipboard
// read bounded by clipboardTimeout.
func DispatchTimeoutFor(clipboardTimeout time.Duration) time.Duration {
	if clipboardTimeout <= 0 {
		clipboardTimeout = placeholder.DefaultClipboardTimeout
	}
	return clipboardTimeout + dispatchMargin
}

// ComponentDir is where per-user IBus component files live.
func ComponentDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "ibus", "component")
}

// ComponentPath is the component file for cfg.
func ComponentPath(cfg Config) string {
	return filepath.Join(ComponentDir(), cfg.EngineName+".xml")
}

// ComponentXML describes the engine to ibus-daemon, which starts execPath
// with -ibus when the user selects it.
func ComponentXML(cfg Config, execPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?>
<component>
    <name>%s</name>
    <description>copyx text expander</description>
    <exec>%s -ibus</exec>
    <version>%s</version>
    <author>copyx</author>
    <license>MIT</license>
    <textdomain>copyx</textdomain>
    <engines>
        <engine>
            <name>%s</name>
            <language>en</language>
            <license>MIT</license>
            <author>copyx</author>
            <layout>us</layout>
            <longname>copyx</longname>
            <description>Expands typed shortcuts into snippets</description>
            <rank>0</rank>
            <symbol>cx</symbol>
        </engine>
    </engines>
</component>
`, xmlEscape(cfg.BusName), xmlEscape(execPath), EngineVersion, xmlEscape(cfg.EngineName))
	return b.String()
}

var xmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func xmlEscape(s string) string { return xmlReplacer.Replace(s) }

// Install writes the component file and asks IBus to pick it up.
func Install(cfg Config, execPath string) (string, error) {
	path := ComponentPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create component directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(ComponentXML(cfg, execPath)), 0644); err != nil {
		return "", fmt.Errorf("write component: %w", err)
	}
	restartIBus()
	return path, nil
}

// Uninstall removes the component file. A missing file is not an error.
func Uninstall(cfg Config) error {
	if err := os.Remove(ComponentPath(cfg)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove component: %w", err)
	}
	restartIBus()
	return nil
}
