package sysstats

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// probeFileLines reads a file and returns its lines, tolerating absence.
func probeFileLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// readCPUCounters returns aggregate busy and total jiffies from /proc/stat.
func readCPUCounters() (busy, total uint64, ok bool) {
	return parseCPULine(probeFileLines("/proc/stat"))
}

// parseCPULine extracts the aggregate "cpu " line. busy excludes idle and
// iowait time.
func parseCPULine(lines []string) (busy, total uint64, ok bool) {
	for _, line := range lines {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		if len(fields) < 5 {
			return 0, 0, false
		}
		var vals []uint64
		for _, f := range fields {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return 0, 0, false
			}
			vals = append(vals, v)
		}
		for _, v := range vals {
			total += v
		}
		idle := vals[3]
		iowait := uint64(0)
		if len(vals) > 4 {
			iowait = vals[4]
		}
		busy = total - idle - iowait
		return busy, total, true
	}
	return 0, 0, false
}

// ramPercent computes used-memory percent from /proc/meminfo.
func ramPercent() float64 {
	return parseMemInfo(probeFileLines("/proc/meminfo"))
}

func parseMemInfo(lines []string) float64 {
	var totalKB, availKB uint64
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = memInfoValue(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availKB = memInfoValue(line)
		}
	}
	if totalKB == 0 || availKB > totalKB {
		return 0
	}
	return float64(totalKB-availKB) / float64(totalKB) * 100.0
}

func memInfoValue(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
