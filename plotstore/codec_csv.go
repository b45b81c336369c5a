package plotstore

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrParse is returned when a non-empty CSV line fails to parse.
type ErrParse struct {
	Line string
	Err  error
}

func (e *ErrParse) Error() string {
	return fmt.Sprintf("parse plot csv line %q: %v", e.Line, e.Err)
}

func (e *ErrParse) Unwrap() error { return e.Err }

// LoadCSV appends one plot per non-empty line of path, in
// drone_id,node_id,timestamp,latitude,longitude order. It returns the count
// of plots loaded. A malformed non-empty line aborts the load, leaving any
// plots already appended in place (mirrors the original loader, which does
// the same).
func (s *Store) LoadCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open plot csv %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p, err := parseCSVLine(line)
		if err != nil {
			return count, &ErrParse{Line: line, Err: err}
		}
		s.Append(p.DroneID, p.NodeID, p.Timestamp, p.Latitude, p.Longitude)
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read plot csv %s: %w", path, err)
	}
	return count, nil
}

func parseCSVLine(line string) (Plot, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return Plot{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	droneID, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return Plot{}, fmt.Errorf("drone_id: %w", err)
	}
	nodeID, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return Plot{}, fmt.Errorf("node_id: %w", err)
	}
	timestamp, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Plot{}, fmt.Errorf("timestamp: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[3], 32)
	if err != nil {
		return Plot{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(fields[4], 32)
	if err != nil {
		return Plot{}, fmt.Errorf("longitude: %w", err)
	}

	return Plot{
		DroneID:   int32(droneID),
		NodeID:    int32(nodeID),
		Timestamp: timestamp,
		Latitude:  float32(lat),
		Longitude: float32(lon),
	}, nil
}

// WriteCSV writes every plot in the store, in current iteration order, to
// path as drone_id,node_id,timestamp,latitude,longitude lines with floats
// at 10 significant digits of precision. It returns the count written.
func (s *Store) WriteCSV(path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create plot csv %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	count := 0
	s.Iterate(func(it Iterator) bool {
		p := it.Plot()
		fmt.Fprintf(w, "%d,%d,%d,%s,%s\n",
			p.DroneID, p.NodeID, p.Timestamp,
			strconv.FormatFloat(float64(p.Latitude), 'g', 10, 32),
			strconv.FormatFloat(float64(p.Longitude), 'g', 10, 32),
		)
		count++
		return true
	})

	if err := w.Flush(); err != nil {
		return count, fmt.Errorf("flush plot csv %s: %w", path, err)
	}
	return count, nil
}
