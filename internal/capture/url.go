package capture

import (
	"net/url"

	"github.com/quantumtrader/chartsnap/internal/symbols"
)

const widgetBase = "https://s.tradingview.com/widgetembed/"

// ChartURL builds the widget-embed chart URL for one candidate. The widget
// page renders a full chart without requiring a login session, which is what
// makes anonymous screenshotting workable.
func ChartURL(cand symbols.Candidate, interval, theme string) string {
	q := url.Values{}
	q.Set("symbol", cand.Source+":"+cand.Ticker)
	q.Set("interval", interval)
	q.Set("theme", theme)
	q.Set("style", "1")
	q.Set("hidetoptoolbar", "1")
	q.Set("hidelegend", "1")
	q.Set("hidesidetoolbar", "1")
	q.Set("symboledit", "0")
	q.Set("saveimage", "0")
	q.Set("withdateranges", "0")
	return widgetBase + "?" + q.Encode()
}
