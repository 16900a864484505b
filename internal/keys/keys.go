// Package keys derives the identifiers and partition/sort key strings used to
// address every record in the single backing table.
package keys

import (
	"fmt"
	"time"
)

const (
	stationsPartition = "STATIONS"
	stationPrefix     = "STATION#"
	trackPrefix       = "TRACK#"
	playPrefix        = "PLAY#"
	titlePrefix       = "TITLE#"

	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// StationsPartition is the partition holding every station record.
func StationsPartition() string {
	return stationsPartition
}

// StationSort returns the sort key of a station record.
func StationSort(stationID string) string {
	return stationPrefix + stationID
}

// StationSortPrefix matches every station sort key.
func StationSortPrefix() string {
	return stationPrefix
}

// TracksPartition returns the partition holding the tracks of a station.
func TracksPartition(stationID string) string {
	return fmt.Sprintf("%s%s#TRACKS", stationPrefix, stationID)
}

// TrackSort returns the sort key of a track record.
func TrackSort(trackID string) string {
	return trackPrefix + trackID
}

// TrackSortPrefix matches every track sort key.
func TrackSortPrefix() string {
	return trackPrefix
}

// ArtistPartition returns the partition of the artist+title index for a station.
func ArtistPartition(stationID, artist string) string {
	return fmt.Sprintf("%s%s#ARTIST#%s", stationPrefix, stationID, artist)
}

// TitleSort returns the sort key of a track metadata record.
func TitleSort(title string) string {
	return titlePrefix + title
}

// TitleSortPrefix matches every track metadata sort key.
func TitleSortPrefix() string {
	return titlePrefix
}

// PlaysPartition returns the day partition holding plays of a station created on day.
func PlaysPartition(stationID string, day time.Time) string {
	return PlaysStationPrefix(stationID) + DayPartition(day)
}

// PlaysStationPrefix matches every play partition of a station.
func PlaysStationPrefix(stationID string) string {
	return fmt.Sprintf("%s%s#PLAYS#", stationPrefix, stationID)
}

// PlaySort returns the sort key of a play record, shared by the track play index.
func PlaySort(playID string) string {
	return playPrefix + playID
}

// PlaySortPrefix matches every play sort key.
func PlaySortPrefix() string {
	return playPrefix
}

// TrackPlaysPartition returns the secondary index partition of a track's plays for month.
func TrackPlaysPartition(trackID string, month time.Time) string {
	return fmt.Sprintf("%s%s#%s", trackPrefix, trackID, MonthPartition(month))
}

// IDFromSort strips a known prefix from a sort key.
func IDFromSort(sortKey, prefix string) (string, bool) {
	if len(sortKey) <= len(prefix) || sortKey[:len(prefix)] != prefix {
		return "", false
	}
	return sortKey[len(prefix):], true
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// Month truncates t to the start of its UTC calendar month.
func Month(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DayPartition formats the day suffix of a play partition.
func DayPartition(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// MonthPartition formats the month suffix of a track play partition.
func MonthPartition(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// ParseDayPartition parses a day suffix produced by DayPartition.
func ParseDayPartition(value string) (time.Time, error) {
	return time.ParseInLocation(dayLayout, value, time.UTC)
}

// ParseMonthPartition parses a month suffix produced by MonthPartition.
func ParseMonthPartition(value string) (time.Time, error) {
	return time.ParseInLocation(monthLayout, value, time.UTC)
}
