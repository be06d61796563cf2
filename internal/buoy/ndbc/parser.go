package ndbc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/swellwatch/swellwatch/internal/buoy"
)

// Parse converts a realtime table for one station into a document with
// rows ordered oldest first. Malformed data rows are counted and dropped.
// A table with a valid header and no data rows yields buoy.ErrNoData.
func Parse(feed buoy.Feed, stationID string, body []byte) (*buoy.Document, error) {
	sch, ok := schemaFor(feed)
	if !ok {
		return nil, &buoy.ParseError{StationID: stationID, Feed: feed, Reason: fmt.Sprintf("unsupported feed %q", feed)}
	}

	doc := &buoy.Document{StationID: stationID, Feed: feed}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	lineNo := 0
	headerSeen := false
	unitsSeen := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			switch {
			case !headerSeen:
				if err := sch.checkHeader(headerNames(line)); err != nil {
					return nil, &buoy.ParseError{StationID: stationID, Feed: feed, Line: lineNo, Reason: err.Error()}
				}
				headerSeen = true
			case !unitsSeen:
				unitsSeen = true
			default:
				doc.SkippedRows++
			}
			continue
		}

		if !headerSeen {
			return nil, &buoy.ParseError{StationID: stationID, Feed: feed, Line: lineNo, Reason: "missing header line"}
		}

		row, err := sch.parseRow(strings.Fields(line))
		if err != nil {
			doc.SkippedRows++
			continue
		}
		doc.Rows = append(doc.Rows, row)
	}

	if err := scanner.Err(); err != nil {
		return nil, &buoy.ParseError{StationID: stationID, Feed: feed, Line: lineNo, Reason: err.Error()}
	}
	if !headerSeen {
		return nil, &buoy.ParseError{StationID: stationID, Feed: feed, Reason: "missing header line"}
	}

	if len(doc.Rows) == 0 {
		if doc.SkippedRows > 0 {
			return nil, &buoy.ParseError{
				StationID: stationID,
				Feed:      feed,
				Reason:    fmt.Sprintf("no parseable rows, %d malformed", doc.SkippedRows),
			}
		}
		return nil, fmt.Errorf("%w: %s %s", buoy.ErrNoData, feed, stationID)
	}

	// Upstream lists newest first.
	sort.SliceStable(doc.Rows, func(i, j int) bool {
		return doc.Rows[i].Time.Before(doc.Rows[j].Time)
	})

	return doc, nil
}

var (
	errRowWidth = errors.New("wrong number of columns")
	errRowTime  = errors.New("invalid timestamp")
	errRowValue = errors.New("invalid numeric value")
)

func (s schema) parseRow(fields []string) (buoy.Row, error) {
	if len(fields) != s.width() {
		return buoy.Row{}, errRowWidth
	}

	ts, err := parseTimestamp(fields[:len(timeAliases)])
	if err != nil {
		return buoy.Row{}, err
	}

	row := buoy.Row{Time: ts}
	for i, col := range s.columns {
		raw := fields[len(timeAliases)+i]
		if isMissing(raw) {
			continue
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return buoy.Row{}, errRowValue
		}
		if col.assign != nil {
			col.assign(&row, col.value(v))
		}
	}

	return row, nil
}

// parseTimestamp reads YY MM DD hh mm as UTC. Two-digit years are 2000-based.
func parseTimestamp(fields []string) (time.Time, error) {
	var parts [5]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}, errRowTime
		}
		parts[i] = n
	}

	year, month, day, hour, minute := parts[0], parts[1], parts[2], parts[3], parts[4]
	if len(fields[0]) == 2 {
		year += 2000
	}

	if month < 1 || month > 12 || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, errRowTime
	}
	ts := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	if day < 1 || ts.Day() != day {
		return time.Time{}, errRowTime
	}

	return ts, nil
}
