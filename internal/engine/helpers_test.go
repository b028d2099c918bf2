package engine

import (
	"fmt"
	"time"
)

var testEpoch = time.Unix(1700000000, 0).UTC()

func f64(v float64) *float64 { return &v }

func str(v string) *string { return &v }

// testScan builds a located scan event for cluster and assignment tests.
func testScan(id string, lat, lon float64, category string) ScanEvent {
	return ScanEvent{
		ID:          id,
		EventID:     "evt1",
		WristbandID: "wb-" + id,
		Category:    category,
		Lat:         f64(lat),
		Lon:         f64(lon),
		Timestamp:   testEpoch,
	}
}

// testScanGrid builds n scans jittered within roughly spreadM meters of a
// center point, deterministically.
func testScanGrid(prefix string, n int, lat, lon, spreadM float64, category string) []ScanEvent {
	scans := make([]ScanEvent, 0, n)
	degPerM := 1.0 / 111194.9
	for i := 0; i < n; i++ {
		dLat := float64(i%3-1) * spreadM / 2 * degPerM
		dLon := float64(i%5-2) * spreadM / 4 * degPerM
		scans = append(scans, testScan(fmt.Sprintf("%s%d", prefix, i), lat+dLat, lon+dLon, category))
	}
	return scans
}
