package keyValStore

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

func (c StoreConfig) check() error {
	if c.InMemory {
		return nil
	}

	if c.Path == "" {
		return fmt.Errorf("no storage path configured")
	}

	if err := os.MkdirAll(c.Path, 0o700); err != nil {
		return fmt.Errorf("storage path %q is not writable: %w", c.Path, err)
	}

	return checkFreeSpace(c.Path, c.MinimumFreeSpace)
}

// checkFreeSpace refuses to open the store when the volume is below the
// configured minimum, so badger never starts on a disk about to fill up.
func checkFreeSpace(path string, minimumGB int) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("error retrieving disk usage for %q: %w", path, err)
	}

	freeGB := float64(usage.Free) / 1e9
	log.WithFields(logrus.Fields{
		"Path":       path,
		"Total (GB)": fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
		"Free (GB)":  fmt.Sprintf("%.2f", freeGB),
	}).Info("Disk Usage")

	if minimumGB > 0 && freeGB < float64(minimumGB) {
		return fmt.Errorf("only %.2f GB free at %q, %d GB required", freeGB, path, minimumGB)
	}
	return nil
}
