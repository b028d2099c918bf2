// Command gates-backfill reprocesses historical scan data through a running
// gatewise service. It drives the process endpoint in repeated cycles per
// event until gate discovery stabilises or the cycle limit is reached.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// errInFlight marks a 409 from the process endpoint: another cycle holds
// the event. The caller waits and retries.
var errInFlight = errors.New("cycle already in flight")

// cycleReport carries the fields of the service's cycle report that the
// backfill loop inspects for progress and quiescence.
type cycleReport struct {
	ID                string  `json:"id"`
	EventID           string  `json:"eventId"`
	ScansProcessed    int     `json:"scansProcessed"`
	ScansLinked       int     `json:"scansLinked"`
	ClustersFound     int     `json:"clustersFound"`
	EpsilonM          float64 `json:"epsilonM"`
	GatesBefore       int     `json:"gatesBefore"`
	GatesAfter        int     `json:"gatesAfter"`
	DuplicatesRemoved int     `json:"duplicatesRemoved"`
	Note              string  `json:"note,omitempty"`
}

func main() {
	var addr string
	var eventID string
	var maxCycles int
	var wait time.Duration

	flag.StringVar(&addr, "addr", "http://localhost:8080", "base URL of the gatewise service")
	flag.StringVar(&eventID, "event", "", "event to reprocess (all events with scan data when empty)")
	flag.IntVar(&maxCycles, "cycles", 5, "maximum processing cycles per event")
	flag.DurationVar(&wait, "wait", 2*time.Second, "pause between cycles and in-flight retries")
	flag.Parse()

	if maxCycles < 1 {
		log.Fatalf("cycles must be at least 1")
	}
	addr = strings.TrimRight(addr, "/")

	client := &http.Client{Timeout: 5 * time.Minute}

	events := []string{eventID}
	if eventID == "" {
		var err error
		events, err = fetchEvents(client, addr)
		if err != nil {
			log.Fatalf("list events: %v", err)
		}
		if len(events) == 0 {
			fmt.Println("no events with scan data; nothing to do")
			return
		}
	}

	for _, ev := range events {
		if err := backfillEvent(client, addr, ev, maxCycles, wait); err != nil {
			log.Fatalf("backfill %s: %v", ev, err)
		}
	}

	fmt.Println("backfill complete")
}

// fetchEvents lists the event IDs the service has scan data for.
func fetchEvents(client *http.Client, addr string) ([]string, error) {
	resp, err := client.Get(addr + "/api/events")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var events []string
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// backfillEvent runs processing cycles for one event until a cycle makes no
// changes (nothing linked, no gates added or merged) or maxCycles is hit.
func backfillEvent(client *http.Client, addr, eventID string, maxCycles int, wait time.Duration) error {
	fmt.Printf("reprocessing event %s\n", eventID)

	for cycle := 1; cycle <= maxCycles; cycle++ {
		report, err := processOnce(client, addr, eventID)
		for attempts := 0; errors.Is(err, errInFlight) && attempts < 10; attempts++ {
			fmt.Printf("  cycle already in flight; retrying in %s\n", wait)
			time.Sleep(wait)
			report, err = processOnce(client, addr, eventID)
		}
		if err != nil {
			return err
		}

		fmt.Printf("  cycle %d: scans=%d linked=%d clusters=%d eps=%.1fm gates %d->%d merged=%d\n",
			cycle, report.ScansProcessed, report.ScansLinked, report.ClustersFound,
			report.EpsilonM, report.GatesBefore, report.GatesAfter, report.DuplicatesRemoved)

		if report.ScansLinked == 0 && report.DuplicatesRemoved == 0 && report.GatesAfter == report.GatesBefore {
			fmt.Printf("  stable after %d cycle(s)\n", cycle)
			return nil
		}

		if cycle < maxCycles {
			time.Sleep(wait)
		}
	}

	fmt.Printf("  reached cycle limit (%d) without stabilising\n", maxCycles)
	return nil
}

// processOnce triggers a single processing cycle and decodes its report.
func processOnce(client *http.Client, addr, eventID string) (cycleReport, error) {
	var report cycleReport

	resp, err := client.Post(addr+"/api/process?event="+url.QueryEscape(eventID), "application/json", nil)
	if err != nil {
		return report, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			return report, fmt.Errorf("decode report: %w", err)
		}
		return report, nil

	case http.StatusConflict:
		io.Copy(io.Discard, resp.Body)
		return report, errInFlight

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return report, fmt.Errorf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
