package metrics

// Namespace prefixes every copyx metric name.
const Namespace = "copyx"

// Expander groups the metrics recorded along the key path.
type Expander struct {
	Registry *Registry

	Keystrokes           *Counter
	Expansions           *Counter
	ExpansionsAborted    *Counter
	SeparatorPassthrough *Counter
	ClipboardFailures    *Counter
	DirectoryReloads     *Counter

	DirectorySnippets *Gauge

	ExpansionDuration *Histogram
}

// NewExpander registers the expander metrics on r. A nil r gets a fresh
// registry in the copyx namespace.
func NewExpander(r *Registry) *Expander {
	if r == nil {
		r = NewRegistry(Namespace)
	}
	return &Expander{
		Registry: r,

		Keystrokes: r.Counter("keystrokes_total",
			"Key events observed on editable surfaces"),
		Expansions: r.Counter("expansions_total",
			"Shortcuts expanded and committed to a surface"),
		ExpansionsAborted: r.Counter("expansions_aborted_total",
			"Matched shortcuts whose commit was aborted"),
		SeparatorPassthrough: r.Counter("separator_passthrough_total",
			"Separator keys that matched no shortcut"),
		ClipboardFailures: r.Counter("clipboard_failures_total",
			"Clipboard reads that failed, timed out or returned nothing"),
		DirectoryReloads: r.Counter("directory_reloads_total",
			"Successful snippet directory reloads"),

		DirectorySnippets: r.Gauge("directory_snippets",
			"Snippets currently held by the directory"),

		ExpansionDuration: r.Histogram("expansion_duration_seconds",
			"Time from separator to committed edit", DurationBuckets),
	}
}
