package symbols

// Display names exactly as users type them. The tables below map each display
// pair to the canonical ticker charting feeds understand.

var fxPairs = []string{
	"EUR/USD", "GBP/USD", "USD/JPY", "USD/CHF", "AUD/USD", "NZD/USD", "USD/CAD", "EUR/GBP", "EUR/JPY", "GBP/JPY",
	"AUD/JPY", "NZD/JPY", "EUR/AUD", "GBP/AUD", "EUR/CAD", "USD/MXN", "USD/TRY", "USD/ZAR", "AUD/CHF", "EUR/CHF",
}

// OTC pairs are broker-synthetic instruments; charting goes through the
// underlying real-market ticker.
var otcUnderlying = map[string]string{
	"EUR/USD-OTC": "EURUSD", "GBP/USD-OTC": "GBPUSD", "USD/JPY-OTC": "USDJPY", "USD/CHF-OTC": "USDCHF", "AUD/USD-OTC": "AUDUSD",
	"NZD/USD-OTC": "NZDUSD", "USD/CAD-OTC": "USDCAD", "EUR/GBP-OTC": "EURGBP", "EUR/JPY-OTC": "EURJPY", "GBP/JPY-OTC": "GBPJPY",
	"AUD/CHF-OTC": "AUDCHF", "EUR/CHF-OTC": "EURCHF", "KES/USD-OTC": "USDKES", "MAD/USD-OTC": "USDMAD", "USD/BDT-OTC": "USDBDT",
	"USD/MXN-OTC": "USDMXN", "USD/MYR-OTC": "USDMYR", "USD/PKR-OTC": "USDPKR",
}

var indexTickers = map[string]string{
	"US30": "DJI", "US100": "NDX", "US500": "SPX", "GER40": "DAX", "UK100": "FTSE", "JPN225": "NI225", "HK50": "HSI", "AUS200": "ASX",
	"SPX": "SPX", "NDX": "NDX", "DAX": "DAX", "FTSE": "FTSE", "NIKKEI": "NI225", "SENSEX": "SENSEX",
}

var cryptoTickers = map[string]string{
	"BTC/USD": "BTCUSDT", "ETH/USD": "ETHUSDT", "SOL/USD": "SOLUSDT", "XRP/USD": "XRPUSDT", "BNB/USD": "BNBUSDT",
	"DOGE/USD": "DOGEUSDT", "ADA/USD": "ADAUSDT", "LTC/USD": "LTCUSDT", "DOT/USD": "DOTUSDT", "TRX/USD": "TRXUSDT",
}

// Fallback source lists tried in order when the primary feed fails.
var (
	fxFallbacks     = []string{"FX", "FX_IDC", "OANDA", "FOREXCOM", "IDC"}
	otcFallbacks    = append([]string{"QUOTEX", "CURRENCY"}, fxFallbacks...)
	indexFallbacks  = []string{"INDEX", "CME", "TVC", "OANDA"}
	cryptoFallbacks = []string{"BINANCE", "COINBASE", "BYBIT", "BITFINEX", "KRAKEN", "OANDA"}
)
