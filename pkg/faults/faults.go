// Package faults decodes the robot's "add_error"/"rm_error"/"errors"
// data-channel messages, each carrying a list of (timestamp, source, code)
// triples, into human-readable fault reports.
package faults

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sourceMessages maps an error source code to a human-readable subsystem
// name.
var sourceMessages = map[int]string{
	100: "Communication firmware malfunction",
	200: "Communication firmware malfunction",
	300: "Motor malfunction",
	400: "Radar malfunction",
	500: "UWB malfunction",
	600: "Motion Control",
}

// codeMessages maps "<source>_<hexCode>" to a specific fault description.
var codeMessages = map[string]string{
	"100_1":   "DDS message timeout",
	"100_10":  "Battery communication error",
	"100_2":   "Distribution switch abnormal",
	"100_20":  "Abnormal mote control communication",
	"100_40":  "MCU communication error",
	"100_80":  "Motor communication error",
	"200_1":   "Rear left fan jammed",
	"200_2":   "Rear right fan jammed",
	"200_4":   "Front fan jammed",
	"300_1":   "Overcurrent",
	"300_10":  "Winding overheating",
	"300_100": "Motor communication interruption",
	"300_2":   "Overvoltage",
	"300_20":  "Encoder abnormal",
	"300_4":   "Driver overheating",
	"300_8":   "Generatrix undervoltage",
	"400_1":   "Motor rotate speed abnormal",
	"400_10":  "Abnormal dirt index",
	"400_2":   "PointCloud data abnormal",
	"400_4":   "Serial port data abnormal",
	"500_1":   "UWB serial port open abnormal",
	"500_2":   "Robot dog information retrieval abnormal",
	"600_4":   "Overheating software protection",
	"600_8":   "Low battery software protection",
}

// Fault is one decoded entry from a fault-report message.
type Fault struct {
	Time       time.Time
	Source     int
	SourceText string
	Code       int
	CodeHex    string
	CodeText   string
}

func (f Fault) String() string {
	return fmt.Sprintf("[%s] %s: %s (code %s)", f.Time.Format("2006-01-02 15:04:05"), f.SourceText, f.CodeText, f.CodeHex)
}

// sourceText looks up the human-readable name for source, falling back to
// its numeric form.
func sourceText(source int) string {
	if t, ok := sourceMessages[source]; ok {
		return t
	}
	return strconv.Itoa(source)
}

// codeText looks up the human-readable name for (source, codeHex), falling
// back to "<source>-<codeHex>". The vendor table keys codes by the
// uppercase hex string form (e.g. "300_100" is source 300, hex code "100"),
// matching codeHex's own format.
func codeText(source int, codeHex string) string {
	key := fmt.Sprintf("%d_%s", source, codeHex)
	if t, ok := codeMessages[key]; ok {
		return t
	}
	return fmt.Sprintf("%d-%s", source, codeHex)
}

// Decode converts a message's raw "data" entries — each a 3-element
// [timestamp, source, code] tuple — into Faults.
func Decode(entries [][3]float64) []Fault {
	faults := make([]Fault, 0, len(entries))
	for _, e := range entries {
		ts := int64(e[0])
		source := int(e[1])
		code := int(e[2])
		hex := strings.ToUpper(strconv.FormatInt(int64(code), 16))

		faults = append(faults, Fault{
			Time:       time.Unix(ts, 0),
			Source:     source,
			SourceText: sourceText(source),
			Code:       code,
			CodeHex:    hex,
			CodeText:   codeText(source, hex),
		})
	}
	return faults
}
