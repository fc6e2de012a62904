package signals

import (
	"regexp"
	"strings"
)

// cashtagRe matches $SYM-style tickers (1-5 uppercase letters).
var cashtagRe = regexp.MustCompile(`\$([A-Z]{1,5})\b`)

// bareTickerRe matches bare all-caps words that could be a ticker; callers
// must run these candidates through Blacklist and a validator before
// trusting them, since this alone massively overmatches ("I", "CEO", "DD").
var bareTickerRe = regexp.MustCompile(`\b([A-Z]{2,5})\b`)

// Blacklist excludes common bare-word false positives that are valid
// all-caps English words/acronyms but are essentially never intended as a
// ticker mention in retail trading chatter.
var Blacklist = map[string]bool{
	"CEO": true, "CFO": true, "IPO": true, "ATH": true, "ATL": true,
	"YOLO": true, "FOMO": true, "FUD": true, "DD": true, "PM": true,
	"AM": true, "EOD": true, "USD": true, "ALL": true, "FOR": true,
	"THE": true, "AND": true, "ARE": true, "NOT": true, "YOU": true,
	"ITS": true, "BUY": true, "SELL": true, "PUT": true, "CALL": true,
	"EPS": true, "ETF": true, "USA": true, "GDP": true, "FED": true,
}

// ExtractTickers pulls cashtags ($SYM) and bare all-caps candidates out
// of free text. Cashtags are trusted symbols by construction (the author
// explicitly tagged them); bare candidates still need blacklist filtering
// and external validation before use.
func ExtractTickers(text string) (cashtags []string, bareCandidates []string) {
	seen := map[string]bool{}
	for _, m := range cashtagRe.FindAllStringSubmatch(text, -1) {
		sym := m[1]
		if !seen[sym] {
			seen[sym] = true
			cashtags = append(cashtags, sym)
		}
	}
	bareSeen := map[string]bool{}
	for _, m := range bareTickerRe.FindAllStringSubmatch(text, -1) {
		sym := m[1]
		if seen[sym] || bareSeen[sym] || Blacklist[strings.ToUpper(sym)] {
			continue
		}
		bareSeen[sym] = true
		bareCandidates = append(bareCandidates, sym)
	}
	return cashtags, bareCandidates
}
