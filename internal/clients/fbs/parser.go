package fbs

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yhlin/etfwatch/internal/models"
)

// maxWarrantsPerPage caps how many rows one ranking page can yield.
const maxWarrantsPerPage = 20

// warrantBlockLines is the number of text lines one warrant occupies.
const warrantBlockLines = 9

var (
	rankingRe = regexp.MustCompile(`^(\d+)\s*\|`)
	bracketRe = regexp.MustCompile(`\[([A-Z0-9]+)\s+([^\]]+)\]`)
	linkRe    = regexp.MustCompile(`Link2Stk\('AQ([A-Z0-9]+)'\)`)
)

var blockedIndicators = []string{
	"access denied",
	"訪問被拒絕",
	"blocked",
	"robot",
	"captcha",
	"verification",
	"too many requests",
	"請求過於頻繁",
}

// IsBlockedContent reports whether a page body looks like an anti-bot
// interstitial rather than ranking data.
func IsBlockedContent(content string) bool {
	lower := strings.ToLower(content)
	for _, indicator := range blockedIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// IsTextFormat reports whether a page arrived in the pipe-delimited
// text layout. The site intermittently serves full HTML instead; a
// text page has many more pipes than tags.
func IsTextFormat(content string) bool {
	pipeCount := strings.Count(content, "|")
	tagCount := strings.Count(content, "<")
	return pipeCount > tagCount*2 && pipeCount > 50
}

// ParseTextPage parses one pipe-delimited ranking page. Each warrant
// occupies nine consecutive lines: ranking, [code name], [underlying],
// type, close, change, change percent, volume, implied volatility.
// Malformed blocks are skipped by advancing one line and retrying.
func ParseTextPage(content string, page int) []models.Warrant {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	start := -1
	for i, line := range lines {
		if rankingRe.MatchString(line) {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	var warrants []models.Warrant
	i := start
	for i < len(lines) && len(warrants) < maxWarrantsPerPage {
		if i+warrantBlockLines > len(lines) {
			break
		}
		if w, ok := parseWarrantBlock(lines[i:i+warrantBlockLines], page); ok {
			warrants = append(warrants, w)
			i += warrantBlockLines
		} else {
			i++
		}
	}

	return warrants
}

// parseWarrantBlock parses one nine-line warrant block. Rows whose
// type is not 認購 or 認售 are rejected.
func parseWarrantBlock(block []string, page int) (models.Warrant, bool) {
	rankingMatch := rankingRe.FindStringSubmatch(block[0])
	if rankingMatch == nil {
		return models.Warrant{}, false
	}
	ranking, err := strconv.Atoi(rankingMatch[1])
	if err != nil {
		return models.Warrant{}, false
	}

	warrantMatch := bracketRe.FindStringSubmatch(block[1])
	if warrantMatch == nil {
		return models.Warrant{}, false
	}

	// The underlying line is a bare "|" for basket warrants.
	underlyingName := ""
	if strings.TrimSpace(block[2]) != "|" {
		if m := bracketRe.FindStringSubmatch(block[2]); m != nil {
			underlyingName = strings.TrimSpace(m[2])
		}
	}

	warrantType := stripPipe(block[3])
	if warrantType != models.WarrantTypeCall && warrantType != models.WarrantTypePut {
		return models.Warrant{}, false
	}

	return models.Warrant{
		Ranking:           ranking,
		WarrantCode:       warrantMatch[1],
		WarrantName:       strings.TrimSpace(warrantMatch[2]),
		UnderlyingName:    underlyingName,
		WarrantType:       warrantType,
		ClosePrice:        safeDecimal(stripPipe(block[4])),
		ChangeAmount:      safeDecimal(stripPipe(block[5])),
		ChangePercent:     safeDecimal(stripPipe(block[6])).Abs(),
		Volume:            safeInt(stripPipe(block[7])),
		ImpliedVolatility: safeDecimal(stripPipe(block[8])),
		PageNumber:        page,
	}, true
}

// ExtractWarrantCodes pulls warrant codes out of an HTML-format page.
// The markup only carries codes inside Link2Stk script calls, so this
// is diagnostic output, not storable data.
func ExtractWarrantCodes(content string) []string {
	matches := linkRe.FindAllStringSubmatch(content, -1)
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		codes = append(codes, m[1])
	}
	return codes
}

func stripPipe(line string) string {
	return strings.TrimSpace(strings.ReplaceAll(line, "|", ""))
}

// safeDecimal parses a quote field, treating blanks and dashes as
// zero. Thousands separators and percent signs are stripped.
func safeDecimal(text string) decimal.Decimal {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, ",", ""), "%", ""))
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// safeInt parses a volume field the same way, truncating any decimal
// point the site sneaks in.
func safeInt(text string) int64 {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if cleaned == "" || cleaned == "-" {
		return 0
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}
