// Package placeholder resolves snippet templates into the text to insert and
// the caret position within it.
//
// Supported placeholders, applied in this order:
//
//	${date}      current date, every occurrence
//	${time}      current time, every occurrence
//	${datetime}  current date and time, every occurrence
//	${clipboard} clipboard text, first occurrence only
//	${cursor}    caret position, first occurrence; the token is removed
//
// The order is significant: text substituted by an earlier step is visible to
// later ones, never the reverse.
package placeholder

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"copyx/internal/logging"
)

// Placeholder tokens.
const (
	TokenDate      = "${date}"
	TokenTime      = "${time}"
	TokenDateTime  = "${datetime}"
	TokenClipboard = "${clipboard}"
	TokenCursor    = "${cursor}"
)

// CaretEnd places the caret after the inserted text.
const CaretEnd = -1

// Expansion is a resolved template.
type Expansion struct {
	Text string

	// Caret is a rune offset into Text, or CaretEnd.
	Caret int
}

// CaretOffset returns Caret with CaretEnd turned into the rune length of Text.
func (e Expansion) CaretOffset() int {
	if e.Caret == CaretEnd {
		return utf8.RuneCountInString(e.Text)
	}
	return e.Caret
}

// Clipboard reads text from a clipboard.
type Clipboard interface {
	ReadText(ctx context.Context) (string, error)
}

// Layouts are Go time layouts for the date placeholders.
type Layouts struct {
	Date     string
	Time     string
	DateTime string
}

// DefaultLayouts render like an en-US browser locale, e.g.
// "3/14/2025, 9:05:07 AM" for ${datetime}.
func DefaultLayouts() Layouts {
	return Layouts{
		Date:     "1/2/2006",
		Time:     "3:04:05 PM",
		DateTime: "1/2/2006, 3:04:05 PM",
	}
}

// DefaultClipboardTimeout bounds a clipboard read when none is configured.
const DefaultClipboardTimeout = 500 * time.Millisecond

// Options configures a Resolver. Zero fields take defaults.
type Options struct {
	Now              func() time.Time
	Clipboard        Clipboard
	Layouts          Layouts
	ClipboardTimeout time.Duration
	Logger           *slog.Logger
}

// Resolved describes what happened during one resolution.
type Resolved struct {
	// ClipboardSkipped is set when ${clipboard} was present but could not be
	// substituted; ClipboardErr holds the reason.
	ClipboardSkipped bool
	ClipboardErr     error
}

// Resolver turns templates into expansions. Apart from the clock and the
// clipboard it is a pure function of the template.
type Resolver struct {
	now       func() time.Time
	clipboard Clipboard
	layouts   Layouts
	timeout   time.Duration
	logger    *slog.Logger
}

// New returns a Resolver. Without a Clipboard, ${clipboard} is always left
// in place.
func New(opts Options) *Resolver {
	r := &Resolver{
		now:       opts.Now,
		clipboard: opts.Clipboard,
		layouts:   opts.Layouts,
		timeout:   opts.ClipboardTimeout,
		logger:    logging.OrDiscard(opts.Logger),
	}
	if r.now == nil {
		r.now = time.Now
	}
	def := DefaultLayouts()
	if r.layouts.Date == "" {
		r.layouts.Date = def.Date
	}
	if r.layouts.Time == "" {
		r.layouts.Time = def.Time
	}
	if r.layouts.DateTime == "" {
		r.layouts.DateTime = def.DateTime
	}
	if r.timeout <= 0 {
		r.timeout = DefaultClipboardTimeout
	}
	return r
}

// Resolve expands template. trigger is carried for diagnostics only.
// Clipboard failures never fail the resolution; they are reported in
// Resolved and logged.
func (r *Resolver) Resolve(ctx context.Context, template, trigger string) (Expansion, Resolved) {
	var diag Resolved
	text := template

	if strings.Contains(text, "${") {
		now := r.now()
		text = strings.ReplaceAll(text, TokenDate, now.Format(r.layouts.Date))
		text = strings.ReplaceAll(text, TokenTime, now.Format(r.layouts.Time))
		text = strings.ReplaceAll(text, TokenDateTime, now.Format(r.layouts.DateTime))
	}

	if strings.Contains(text, TokenClipboard) {
		clip, err := r.readClipboard(ctx)
		if err != nil {
			diag.ClipboardSkipped = true
			diag.ClipboardErr = err
			r.logger.Warn("clipboard placeholder left unresolved", "shortcut", trigger, "error", err)
		} else {
			text = strings.Replace(text, TokenClipboard, clip, 1)
		}
	}

	exp := Expansion{Text: text, Caret: CaretEnd}
	if i := strings.Index(text, TokenCursor); i >= 0 {
		exp.Caret = utf8.RuneCountInString(text[:i])
		exp.Text = text[:i] + text[i+len(TokenCursor):]
	}
	return exp, diag
}

func (r *Resolver) readClipboard(ctx context.Context) (string, error) {
	if r.clipboard == nil {
		return "", errNoClipboard
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	text, err := r.clipboard.ReadText(ctx)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errEmptyClipboard
	}
	return text, nil
}

var (
	errNoClipboard    = errors.New("no clipboard configured")
	errEmptyClipboard = errors.New("clipboard returned no text")
)

// NeedsClipboard reports whether resolving template will read the clipboard.
func NeedsClipboard(template string) bool {
	return strings.Contains(template, TokenClipboard)
}
