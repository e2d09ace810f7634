package rfc9111

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// §  1.2.2. Delta Seconds
// §
// §  The delta-seconds rule specifies a non-negative integer, representing time
// §  in seconds.
// §
// §      delta-seconds  = 1*DIGIT
// §
// §  A recipient parsing a delta-seconds value and converting it to binary form
// §  ought to use an arithmetic type of at least 31 bits of non-negative integer
// §  range. If a cache receives a delta-seconds value greater than the greatest
// §  integer it can represent, or if any of its subsequent calculations overflows,
// §  the cache MUST consider the value to be 2147483648 (2^31) or the greatest
// §  positive integer it can conveniently represent.
const deltaSecondsMax = 2147483648

// parseDeltaSeconds returns the duration represented by a delta-seconds value.
// The boolean is false if the value is not a non-negative integer.
//
// Examples:
// ""          -> 0,  false
// "-1"        -> 0,  false
// "60"        -> 60s, true
// "99999999999" -> 2147483648s, true
func parseDeltaSeconds(secondsStr string) (time.Duration, bool) {
	secondsStr = strings.TrimSpace(secondsStr)
	if secondsStr == "" {
		return 0, false
	}
	for _, c := range secondsStr {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	seconds, err := strconv.ParseUint(secondsStr, 10, 64)
	if err != nil || seconds > deltaSecondsMax {
		seconds = deltaSecondsMax
	}
	return time.Second * time.Duration(seconds), true
}

func toDeltaSeconds(duration time.Duration) string {
	return fmt.Sprintf("%.f", duration.Seconds())
}

// §  5.6.7.  Date/Time Formats (from [HTTP])
// §
// §       HTTP-date    = IMF-fixdate / obs-date
// §
// §     An example of the preferred format is
// §
// §       Sun, 06 Nov 1994 08:49:37 GMT    ; IMF-fixdate
// §
// §     Examples of the two obsolete formats are
// §
// §       Sunday, 06-Nov-94 08:49:37 GMT   ; obsolete RFC 850 format
// §       Sun Nov  6 08:49:37 1994         ; ANSI C's asctime() format
// §
// §     A recipient that parses a timestamp value in an HTTP field MUST
// §     accept all three HTTP-date formats.  When a sender generates a field
// §     that contains one or more timestamps defined as HTTP-date, the sender
// §     MUST generate those timestamps in the IMF-fixdate format.

// HttpDate parses an HTTP-date in any of the three allowed formats.
// Matching is case-insensitive, as recommended in Section 4.2.
func HttpDate(dateStr string) (time.Time, error) {
	if date, err := imfDate(dateStr); err == nil {
		return date, err
	} else {
		// try to parse as obsolete date
		if date, err := obsDate(dateStr); err == nil {
			return date, err
		}
		// return original error if unsuccessful
		return date, err
	}
}

// ToHttpDate formats a time as an IMF-fixdate.
func ToHttpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

const imfDateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

func imfDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	date, err := time.Parse(imfDateLayout, str)
	if err != nil {
		return date, err
	}
	// §  A cache recipient SHOULD consider a date with a zone abbreviation
	// §  other than "GMT" to be invalid for calculating expiration.
	//
	// the parsed location depends on the local zone, so check the raw value
	if !strings.HasSuffix(str, " GMT") {
		return date, fmt.Errorf("Date %s is not in GMT time", dateStr)
	}
	return date.UTC(), err
}

func obsDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date.UTC(), err
	}
	date, err := time.Parse(time.ANSIC, str)
	return date.UTC(), err
}

// normalizeDateStr upper-cases the date so that e.g. "gmt" and "GMT" parse equally.
func normalizeDateStr(dateStr string) string {
	return strings.ToUpper(strings.TrimSpace(dateStr))
}
