// Package symbols resolves free-form instrument names into ordered lists of
// (data source, ticker) candidates for chart capture. Resolution is a pure
// table lookup: no I/O, no hidden state, deterministic output.
package symbols

import (
	"regexp"
	"strings"
)

// Candidate is one (data source, ticker) pair to try when capturing a chart.
// Candidates are produced best-guess first; order is significant.
type Candidate struct {
	Source string `json:"source"`
	Ticker string `json:"ticker"`
	OTC    bool   `json:"otc,omitempty"`
}

func (c Candidate) String() string {
	return c.Source + ":" + c.Ticker
}

type entry struct {
	source    string
	ticker    string
	otc       bool
	fallbacks []string
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// Resolver maps raw symbols to candidate lists.
type Resolver struct {
	DefaultSource string
	table         map[string]entry
}

// NewResolver builds a resolver with the static instrument tables. The
// default source is used for bare FX pairs and unrecognized input.
func NewResolver(defaultSource string) *Resolver {
	if defaultSource == "" {
		defaultSource = "FX"
	}
	r := &Resolver{DefaultSource: defaultSource, table: make(map[string]entry)}

	for _, disp := range fxPairs {
		r.table[canonKey(disp)] = entry{
			source:    defaultSource,
			ticker:    strings.ReplaceAll(disp, "/", ""),
			fallbacks: fxFallbacks,
		}
	}
	for disp, tk := range otcUnderlying {
		r.table[canonKey(disp)] = entry{source: "QUOTEX", ticker: tk, otc: true, fallbacks: otcFallbacks}
	}
	for disp, tk := range indexTickers {
		r.table[canonKey(disp)] = entry{source: "TVC", ticker: tk, fallbacks: indexFallbacks}
	}
	for disp, tk := range cryptoTickers {
		r.table[canonKey(disp)] = entry{source: "BINANCE", ticker: tk, fallbacks: cryptoFallbacks}
	}
	return r
}

// Resolve turns a raw user symbol into an ordered, deduplicated candidate
// list. It never returns an empty list: unrecognized input falls back to a
// punctuation-stripped uppercase ticker on the default source, and empty
// input falls back to EURUSD. When explicitSource is non-empty it is moved
// to the front of the source order.
func (r *Resolver) Resolve(raw, explicitSource string) []Candidate {
	e := r.lookup(raw)

	sources := make([]string, 0, len(e.fallbacks)+2)
	if explicitSource != "" {
		sources = append(sources, strings.ToUpper(strings.TrimSpace(explicitSource)))
	}
	sources = append(sources, e.source)
	sources = append(sources, e.fallbacks...)

	seen := make(map[string]bool, len(sources))
	out := make([]Candidate, 0, len(sources))
	for _, src := range sources {
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, Candidate{Source: src, Ticker: e.ticker, OTC: e.otc})
	}
	return out
}

func (r *Resolver) lookup(raw string) entry {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return entry{source: r.DefaultSource, ticker: "EURUSD", fallbacks: fxFallbacks}
	}

	// Explicit EXCHANGE:TICKER form wins outright.
	if ex, tk, ok := strings.Cut(s, ":"); ok && ex != "" && tk != "" {
		return entry{source: ex, ticker: nonAlnum.ReplaceAllString(tk, ""), fallbacks: fxFallbacks}
	}

	if e, ok := r.table[canonKey(s)]; ok {
		return e
	}

	// Unmapped input: best-guess ticker against the default source. Never an
	// error, the capture fallback chain sorts out whether it charts.
	return entry{source: r.DefaultSource, ticker: nonAlnum.ReplaceAllString(s, ""), fallbacks: fxFallbacks}
}

func canonKey(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "/", "")
}
