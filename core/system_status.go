package core

import (
	"bufio"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ServiceStatus is the /healthz payload. It never touches the credential source.
type ServiceStatus struct {
	Status        string `json:"status"`
	Backend       string `json:"backend"`
	Audit         string `json:"audit"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Memory        struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
}

// CollectServiceStatus summarizes the running process.
func CollectServiceStatus(cfg Config, startedAt time.Time) ServiceStatus {
	st := ServiceStatus{Status: "ok", Backend: cfg.CredentialSource, Audit: "disabled"}
	if st.Backend == "" {
		st.Backend = SourceSheets
	}
	if cfg.AuditRedisURL != "" {
		st.Audit = "enabled"
	}

	st.Memory.UsedBytes, st.Memory.TotalBytes = readMemInfo("/proc/meminfo")

	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}

// readMemInfo reports used and total bytes from a /proc/meminfo style file,
// or zeros when it cannot be read.
func readMemInfo(path string) (used, total uint64) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	kib := meminfoFields(f, "MemTotal", "MemAvailable")
	total, avail := kib["MemTotal"], kib["MemAvailable"]
	if total == 0 || avail > total {
		return 0, total * 1024
	}
	return (total - avail) * 1024, total * 1024
}

// meminfoFields collects the kB values of the wanted keys.
func meminfoFields(r io.Reader, keys ...string) map[string]uint64 {
	out := make(map[string]uint64, len(keys))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() && len(out) < len(keys) {
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !slices.Contains(keys, name) {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
			out[name] = v
		}
	}
	return out
}
