// Package transform normalizes inline XBRL fact values. Filers tag human
// readable text ("17th of January 2022", "one million", a ballot box glyph)
// and annotate it with a transformation rule from a registry; applying the
// rule yields the canonical XBRL value (2022-01-17, 1000000, true).
package transform

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Registry namespaces accepted by EDGAR.
const (
	IxtNS2008 = "http://www.xbrl.org/2008/inlineXBRL/transformation"
	IxtNS2010 = "http://www.xbrl.org/inlineXBRL/transformation/2010-04-20"
	IxtNS2011 = "http://www.xbrl.org/inlineXBRL/transformation/2011-07-31"
	IxtNS2015 = "http://www.xbrl.org/inlineXBRL/transformation/2015-02-26"
	IxtNS2020 = "http://www.xbrl.org/inlineXBRL/transformation/2020-02-12"
	SecNS     = "http://www.sec.gov/inlineXBRL/transformation/2015-08-31"
)

var (
	// ErrRegistryNotSupported reports a transformation registry namespace
	// outside the known set.
	ErrRegistryNotSupported = errors.New("transformation registry not supported")
	// ErrFormatNotSupported reports a format code absent from its registry.
	ErrFormatNotSupported = errors.New("transformation format not supported")
	// ErrNotImplemented reports a format code that exists in its registry
	// but has no implementation here.
	ErrNotImplemented = errors.New("transformation not implemented")
)

type rule func(string) (string, error)

func notImplemented(string) (string, error) {
	return "", ErrNotImplemented
}

func fixed(out string) rule {
	return func(string) (string, error) { return out, nil }
}

// Transform applies the named rule from the registry identified by namespace
// to value. The value is trimmed and lowercased first, matching how the
// registries define their inputs.
func Transform(namespace, format, value string) (string, error) {
	registry, ok := registries[namespace]
	if !ok {
		return "", eris.Wrapf(ErrRegistryNotSupported, "registry %s", namespace)
	}
	r, ok := registry[format]
	if !ok {
		return "", eris.Wrapf(ErrFormatNotSupported, "format %q in registry %s", format, namespace)
	}
	out, err := r(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return "", eris.Wrapf(err, "transform: %s %q", format, value)
	}
	return out, nil
}

var (
	nonDigits    = regexp.MustCompile(`[^\d]+`)
	nonWordChars = regexp.MustCompile(`[^\d\w]+`)
)

func splitDigits(arg string) []string {
	return splitNonEmpty(nonDigits.Split(arg, -1))
}

func splitWords(arg string) []string {
	return splitNonEmpty(nonWordChars.Split(arg, -1))
}

func splitNonEmpty(segs []string) []string {
	out := segs[:0]
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func zfill2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

var monthNorm = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "may": "05",
	"jun": "06", "jul": "07", "aug": "08", "sep": "09", "sept": "09",
	"oct": "10", "nov": "11", "dec": "12",
	"january": "01", "february": "02", "march": "03", "april": "04",
	"june": "06", "july": "07", "august": "08", "september": "09",
	"october": "10", "november": "11", "december": "12",
}

func normMonth(name string) (string, error) {
	if m, ok := monthNorm[name]; ok {
		return m, nil
	}
	return "", eris.Errorf("unknown month name %q", name)
}

// normYear maps two-digit years onto 1956..2055.
func normYear(year string) (string, error) {
	switch len(year) {
	case 4:
		return year, nil
	case 2:
		n, err := strconv.Atoi(year)
		if err != nil {
			return "", eris.Errorf("year %q is not numeric", year)
		}
		if n > 55 {
			return "19" + year, nil
		}
		return "20" + year, nil
	}
	return "", eris.Errorf("cannot normalize %q to a year", year)
}

func segments(arg string, words bool, want int) ([]string, error) {
	var seg []string
	if words {
		seg = splitWords(arg)
	} else {
		seg = splitDigits(arg)
	}
	if len(seg) < want {
		return nil, eris.Errorf("expected %d date segments in %q", want, arg)
	}
	return seg, nil
}

func dateDayMonth(arg string) (string, error) {
	seg, err := segments(arg, false, 2)
	if err != nil {
		return "", err
	}
	return "--" + zfill2(seg[1]) + "-" + zfill2(seg[0]), nil
}

func dateDayMonthEN(arg string) (string, error) {
	seg, err := segments(arg, true, 2)
	if err != nil {
		return "", err
	}
	month, err := normMonth(seg[1])
	if err != nil {
		return "", err
	}
	return "--" + month + "-" + zfill2(seg[0]), nil
}

func dateDayMonthYear(arg string) (string, error) {
	seg, err := segments(arg, false, 3)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[2])
	if err != nil {
		return "", err
	}
	return year + "-" + zfill2(seg[1]) + "-" + zfill2(seg[0]), nil
}

func dateDayMonthYearEN(arg string) (string, error) {
	seg, err := segments(arg, true, 3)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[2])
	if err != nil {
		return "", err
	}
	month, err := normMonth(seg[1])
	if err != nil {
		return "", err
	}
	return year + "-" + month + "-" + zfill2(seg[0]), nil
}

func dateMonthDay(arg string) (string, error) {
	seg, err := segments(arg, false, 2)
	if err != nil {
		return "", err
	}
	return "--" + zfill2(seg[0]) + "-" + zfill2(seg[1]), nil
}

func dateMonthDayEN(arg string) (string, error) {
	seg, err := segments(arg, true, 2)
	if err != nil {
		return "", err
	}
	month, err := normMonth(seg[0])
	if err != nil {
		return "", err
	}
	return "--" + month + "-" + zfill2(seg[1]), nil
}

func dateMonthDayYear(arg string) (string, error) {
	seg, err := segments(arg, false, 3)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[2])
	if err != nil {
		return "", err
	}
	return year + "-" + zfill2(seg[0]) + "-" + zfill2(seg[1]), nil
}

func dateMonthDayYearEN(arg string) (string, error) {
	seg, err := segments(arg, true, 3)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[2])
	if err != nil {
		return "", err
	}
	month, err := normMonth(seg[0])
	if err != nil {
		return "", err
	}
	return year + "-" + month + "-" + zfill2(seg[1]), nil
}

func dateMonthYear(arg string) (string, error) {
	seg, err := segments(arg, false, 2)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[1])
	if err != nil {
		return "", err
	}
	return year + "-" + zfill2(seg[0]), nil
}

func dateMonthYearEN(arg string) (string, error) {
	seg, err := segments(arg, true, 2)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[1])
	if err != nil {
		return "", err
	}
	month, err := normMonth(seg[0])
	if err != nil {
		return "", err
	}
	return year + "-" + month, nil
}

func dateYearMonth(arg string) (string, error) {
	seg, err := segments(arg, false, 2)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[0])
	if err != nil {
		return "", err
	}
	return year + "-" + zfill2(seg[1]), nil
}

func dateYearMonthEN(arg string) (string, error) {
	seg, err := segments(arg, true, 2)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[0])
	if err != nil {
		return "", err
	}
	month, err := normMonth(seg[1])
	if err != nil {
		return "", err
	}
	return year + "-" + month, nil
}

func dateYearMonthDay(arg string) (string, error) {
	seg, err := segments(arg, false, 3)
	if err != nil {
		return "", err
	}
	year, err := normYear(seg[0])
	if err != nil {
		return "", err
	}
	return year + "-" + zfill2(seg[1]) + "-" + zfill2(seg[2]), nil
}

var (
	keepDigitsComma = regexp.MustCompile(`[^\d,]+`)
	keepDigitsDot   = regexp.MustCompile(`[^\d.]+`)
)

// numCommaDecimal normalizes numbers written with a comma decimal separator:
// "1.234.567,8" -> "1234567.8".
func numCommaDecimal(arg string) (string, error) {
	arg = keepDigitsComma.ReplaceAllString(arg, "")
	return strings.ReplaceAll(arg, ",", "."), nil
}

// numDotDecimal normalizes numbers written with a dot decimal separator:
// "1,234,567.8" -> "1234567.8".
func numDotDecimal(arg string) (string, error) {
	return keepDigitsDot.ReplaceAllString(arg, ""), nil
}

// durYear turns a decimal year count into an xs:duration: "22.3456"
// becomes P22Y4M4D.
func durYear(arg string) (string, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return "", eris.Errorf("duration %q is not numeric", arg)
	}
	sign := "P"
	if v < 0 {
		sign = "-P"
	}
	dec := math.Abs(v)
	years := math.Floor(dec)
	days := math.Round((dec - years) * 365.25)
	months := math.Floor(days / 30.437)
	rest := math.Round(days - months*30.437)
	return sign + strconv.Itoa(int(years)) + "Y" + strconv.Itoa(int(months)) + "M" + strconv.Itoa(int(rest)) + "D", nil
}

// durMonth turns a decimal month count into an xs:duration: "22.3456"
// becomes P22M10D.
func durMonth(arg string) (string, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return "", eris.Errorf("duration %q is not numeric", arg)
	}
	sign := "P"
	if v < 0 {
		sign = "-P"
	}
	dec := math.Abs(v)
	months := math.Floor(dec)
	days := math.Round((dec - months) * 30)
	return sign + strconv.Itoa(int(months)) + "M" + strconv.Itoa(int(days)) + "D", nil
}

// durWordSen parses sentences like "five years and two months" into
// P5Y2M0D. Quantities may be digits or number words.
func durWordSen(arg string) (string, error) {
	words := strings.Fields(strings.ReplaceAll(arg, "-", " "))
	var years, months, days int
	pending := 0
	havePending := false
	for _, w := range words {
		w = strings.Trim(w, ",.;")
		if n, err := strconv.Atoi(w); err == nil {
			pending, havePending = n, true
			continue
		}
		if n, ok := numberWord(w); ok {
			if havePending && n < 100 {
				pending += n
			} else if havePending {
				pending *= n
			} else {
				pending = n
			}
			havePending = true
			continue
		}
		if !havePending {
			continue
		}
		switch {
		case strings.Contains(w, "year"):
			years, havePending = pending, false
		case strings.Contains(w, "month"):
			months, havePending = pending, false
		case strings.Contains(w, "day"):
			days, havePending = pending, false
		}
	}
	return "P" + strconv.Itoa(years) + "Y" + strconv.Itoa(months) + "M" + strconv.Itoa(days) + "D", nil
}

// numWordSen parses English number sentences: "one million and two" -> 1000002.
func numWordSen(arg string) (string, error) {
	switch arg {
	case "no", "none", "nil":
		return "0", nil
	}
	arg = strings.ReplaceAll(arg, " and ", " ")
	total, current := 0, 0
	for _, w := range strings.Fields(strings.ReplaceAll(arg, "-", " ")) {
		n, ok := numberWord(w)
		if !ok {
			return "", eris.Errorf("unknown number word %q", w)
		}
		switch {
		case n == 100:
			if current == 0 {
				current = 1
			}
			current *= 100
		case n >= 1000:
			if current == 0 {
				current = 1
			}
			total += current * n
			current = 0
		default:
			current += n
		}
	}
	return strconv.Itoa(total + current), nil
}

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "twenty": 20, "thirty": 30, "forty": 40,
	"fifty": 50, "sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred": 100, "thousand": 1000, "million": 1000000,
	"billion": 1000000000, "trillion": 1000000000000,
}

func numberWord(w string) (int, bool) {
	n, ok := numberWords[w]
	return n, ok
}

// ballotBox maps the checkbox glyphs used on SEC cover pages to booleans.
func ballotBox(arg string) (string, error) {
	switch arg {
	case "☐", "&#9744;":
		return "false", nil
	case "☑", "&#9745;", "☒", "&#9746;":
		return "true", nil
	}
	return "", eris.Errorf("invalid ballot box value %q", arg)
}

// Exchange short codes from the EDGAR filer manual.
var exchangeNorm = map[string]string{
	"new york stock exchange":                 "NYSE",
	"nasdaq global select market":             "NASDAQ",
	"nasdaq stock market":                     "NASDAQ",
	"box exchange":                            "BOX",
	"nasdaq bx":                               "BX",
	"cboe c2 exchange":                        "C2",
	"cboe exchange":                           "CBOE",
	"chicago stock exchange":                  "CHX",
	"cboe byx exchange":                       "CboeBYX",
	"cboe bzx exchange":                       "CboeBZX",
	"cboe edga exchange":                      "CboeEDGA",
	"cboe edgx exchange":                      "CboeEDGX",
	"nasdaq gemx":                             "GEMX",
	"investors exchange":                      "IEX",
	"nasdaq ise":                              "ISE",
	"miami international securities exchange": "MIAX",
	"nasdaq mrx":                              "MRX",
	"nyse american":                           "NYSEAMER",
	"nyse arca":                               "NYSEArca",
	"nyse national":                           "NYSENAT",
	"miax pearl":                              "PEARL",
	"nasdaq phlx":                             "Phlx",
}

var (
	exchangeStrip = regexp.MustCompile(`[^\w\s]|\binc\b|\bllc\b|\bthe\b`)
	multiSpace    = regexp.MustCompile(`\s{2,}`)
)

func exchNameEN(arg string) (string, error) {
	name := exchangeStrip.ReplaceAllString(strings.TrimSpace(arg), "")
	name = strings.TrimSpace(multiSpace.ReplaceAllString(name, " "))
	for _, code := range exchangeNorm {
		if strings.EqualFold(name, code) {
			return code, nil
		}
	}
	if code, ok := exchangeNorm[name]; ok {
		return code, nil
	}
	return "", eris.Errorf("unknown exchange %q", arg)
}

var stateNormUS = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT",
	"delaware": "DE", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI",
	"minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND",
	"ohio": "OH", "oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA",
	"rhode island": "RI", "south carolina": "SC", "south dakota": "SD",
	"tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "washington dc": "DC",
	"west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

var punct = regexp.MustCompile(`[^\w\s]`)

func stateNameEN(arg string) (string, error) {
	name := punct.ReplaceAllString(strings.TrimSpace(arg), "")
	name = strings.TrimSpace(multiSpace.ReplaceAllString(name, " "))
	if code, ok := stateNormUS[name]; ok {
		return code, nil
	}
	return "", eris.Errorf("unknown US state %q", arg)
}

func entityFilerCategoryEN(arg string) (string, error) {
	switch strings.TrimSpace(arg) {
	case "large accelerated filer":
		return "Large Accelerated Filer", nil
	case "accelerated filer":
		return "Accelerated Filer", nil
	case "non-accelerated filer":
		return "Non-accelerated Filer", nil
	}
	return "", eris.Errorf("unknown filer category %q", arg)
}

// ixt1 is the original 2010 rule set. The 2008 namespace is an earlier draft
// with identical rules, so both map here.
var ixt1 = map[string]rule{
	"datedoteu":           dateDayMonthYear,
	"datedotus":           dateMonthDayYear,
	"datelonguk":          dateDayMonthYearEN,
	"datelongus":          dateMonthDayYearEN,
	"dateshortuk":         dateDayMonthYearEN,
	"dateshortus":         dateMonthDayYearEN,
	"dateslasheu":         dateDayMonthYear,
	"dateslashus":         dateMonthDayYear,
	"datelongdaymonthuk":  dateDayMonthEN,
	"datelongmonthdayus":  dateMonthDayEN,
	"dateshortdaymonthuk": dateDayMonthEN,
	"dateshortmonthdayus": dateMonthDayEN,
	"dateslashdaymontheu": dateDayMonth,
	"dateslashmonthdayus": dateMonthDay,
	"datelongyearmonth":   dateYearMonthEN,
	"dateshortyearmonth":  dateYearMonthEN,
	"datelongmonthyear":   dateMonthYearEN,
	"dateshortmonthyear":  dateMonthYearEN,
	"numcomma":            numCommaDecimal,
	"numcommadot":         numDotDecimal,
	"numdash":             fixed("0"),
	"numdotcomma":         numCommaDecimal,
	"numspacecomma":       numCommaDecimal,
	"numspacedot":         numDotDecimal,
}

var ixt2 = map[string]rule{
	"booleanfalse":          fixed("false"),
	"booleantrue":           fixed("true"),
	"datedaymonth":          dateDayMonth,
	"datedaymonthen":        dateDayMonthEN,
	"datedaymonthyear":      dateDayMonthYear,
	"datedaymonthyearen":    dateDayMonthYearEN,
	"dateerayearmonthdayjp": notImplemented,
	"dateerayearmonthjp":    notImplemented,
	"datemonthday":          dateMonthDay,
	"datemonthdayen":        dateMonthDayEN,
	"datemonthdayyear":      dateMonthDayYear,
	"datemonthdayyearen":    dateMonthDayYearEN,
	"datemonthyearen":       dateMonthYearEN,
	"dateyearmonthdaycjk":   notImplemented,
	"dateyearmonthen":       dateYearMonthEN,
	"dateyearmonthcjk":      notImplemented,
	"nocontent":             fixed(""),
	"numcommadecimal":       numCommaDecimal,
	"numdotdecimal":         numDotDecimal,
	"numunitdecimal":        notImplemented,
	"zerodash":              fixed("0"),
}

var ixt3 = map[string]rule{
	"booleanfalse":          fixed("false"),
	"booleantrue":           fixed("true"),
	"calindaymonthyear":     notImplemented,
	"datedaymonth":          dateDayMonth,
	"datedaymonthdk":        notImplemented,
	"datedaymonthen":        dateDayMonthEN,
	"datedaymonthyear":      dateDayMonthYear,
	"datedaymonthyeardk":    notImplemented,
	"datedaymonthyearen":    dateDayMonthYearEN,
	"datedaymonthyearin":    notImplemented,
	"dateerayearmonthdayjp": notImplemented,
	"dateerayearmonthjp":    notImplemented,
	"datemonthday":          dateMonthDay,
	"datemonthdayen":        dateMonthDayEN,
	"datemonthdayyear":      dateMonthDayYear,
	"datemonthdayyearen":    dateMonthDayYearEN,
	"datemonthyear":         dateMonthYear,
	"datemonthyeardk":       notImplemented,
	"datemonthyearen":       dateMonthYearEN,
	"datemonthyearin":       notImplemented,
	"dateyearmonthday":      dateYearMonthDay,
	"dateyearmonthdaycjk":   notImplemented,
	"dateyearmonthcjk":      notImplemented,
	"dateyearmonthen":       dateYearMonthEN,
	"nocontent":             fixed(""),
	"numcommadecimal":       numCommaDecimal,
	"numdotdecimal":         numDotDecimal,
	"numdotdecimalin":       notImplemented,
	"numunitdecimal":        notImplemented,
	"numunitdecimalin":      notImplemented,
	"zerodash":              fixed("0"),
}

// ixt4 renames every rule with hyphens and adds a long tail of localized
// date formats; only the English and numeric ones are implemented.
var ixt4 = buildIxt4()

func buildIxt4() map[string]rule {
	m := map[string]rule{
		"date-day-month":             dateDayMonth,
		"date-day-month-year":        dateDayMonthYear,
		"date-day-monthname-en":      dateDayMonthEN,
		"date-day-monthname-year-en": dateDayMonthYearEN,
		"date-month-day":             dateMonthDay,
		"date-month-day-year":        dateMonthDayYear,
		"date-month-year":            dateMonthYear,
		"date-monthname-day-en":      dateMonthDayEN,
		"date-monthname-day-year-en": dateMonthDayYearEN,
		"date-year-month":            dateYearMonth,
		"date-year-month-day":        dateYearMonthDay,
		"date-year-monthname-en":     dateYearMonthEN,
		"fixed-empty":                fixed(""),
		"fixed-false":                fixed("false"),
		"fixed-true":                 fixed("true"),
		"fixed-zero":                 fixed("0"),
		"num-comma-decimal":          numCommaDecimal,
		"num-dot-decimal":            numDotDecimal,
	}
	localized := []string{
		"bg", "cs", "da", "de", "el", "es", "et", "fi", "fr", "hr",
		"it", "lv", "nl", "no", "pl", "pt", "ro", "sk", "sl", "sv",
	}
	for _, lang := range localized {
		m["date-day-monthname-"+lang] = notImplemented
		m["date-day-monthname-year-"+lang] = notImplemented
		m["date-monthname-year-"+lang] = notImplemented
	}
	for _, code := range []string{
		"date-day-monthname-year-hi", "date-day-monthroman",
		"date-day-monthroman-year", "date-ind-day-monthname-year-hi",
		"date-jpn-era-year-month", "date-jpn-era-year-month-day",
		"date-monthname-day-hu", "date-monthname-day-lt",
		"date-monthname-year-en", "date-monthname-year-hi",
		"date-monthroman-year", "date-year-day-monthname-lv",
		"date-year-monthname-day-hu", "date-year-monthname-day-lt",
		"date-year-monthname-hu", "date-year-monthname-lt",
		"date-year-monthname-lv", "num-unit-decimal",
	} {
		m[code] = notImplemented
	}
	return m
}

var ixtSec = map[string]rule{
	"duryear":               durYear,
	"durmonth":              durMonth,
	"durweek":               notImplemented,
	"durday":                notImplemented,
	"durhour":               notImplemented,
	"durwordsen":            durWordSen,
	"numwordsen":            numWordSen,
	"datequarterend":        notImplemented,
	"boolballotbox":         ballotBox,
	"exchnameen":            exchNameEN,
	"stateprovnameen":       stateNameEN,
	"countrynameen":         notImplemented,
	"edgarprovcountryen":    notImplemented,
	"entityfilercategoryen": entityFilerCategoryEN,
}

var registries = map[string]map[string]rule{
	IxtNS2008: ixt1,
	IxtNS2010: ixt1,
	IxtNS2011: ixt2,
	IxtNS2015: ixt3,
	IxtNS2020: ixt4,
	SecNS:     ixtSec,
}
