// Package codec exports the device inventory in portable formats.
package codec

import (
	"fmt"
	"io"
	"slices"
	"time"

	"lanwatch/internal/domain"
)

// Inventory is the exported snapshot of every known device
type Inventory struct {
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	Count       int             `json:"count" yaml:"count"`
	Devices     []domain.Device `json:"devices" yaml:"devices"`
}

// NewInventory wraps a device list for export
func NewInventory(devices []domain.Device, now time.Time) *Inventory {
	if devices == nil {
		devices = []domain.Device{}
	}
	return &Inventory{GeneratedAt: now.UTC(), Count: len(devices), Devices: devices}
}

// Exporter interface for exporting the inventory to various formats
type Exporter interface {
	Export(inv *Inventory, w io.Writer) error
	Format() string
	ContentType() string
}

// Exporters lists every supported format
func Exporters() []Exporter {
	return []Exporter{NewJSONCodec(), NewYAMLCodec()}
}

// ForFormat returns the exporter registered for format
func ForFormat(format string) (Exporter, error) {
	for _, e := range Exporters() {
		if e.Format() == format {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unsupported export format %q (want one of %v)", format, Formats())
}

// Formats returns the names of the supported formats
func Formats() []string {
	var names []string
	for _, e := range Exporters() {
		names = append(names, e.Format())
	}
	slices.Sort(names)
	return names
}
