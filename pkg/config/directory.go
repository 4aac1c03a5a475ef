package config

import (
	"fmt"

	"github.com/pulse-protocol/pulse-go/pkg/capture"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
)

// Directory defines counters to register at startup.
type Directory struct {
	Categories []Category `yaml:"categories"`
}

// Category is one category with an optional device and counter set.
type Category struct {
	Name       string      `yaml:"name"`
	Device     *Device     `yaml:"device"`
	CounterSet *CounterSet `yaml:"counter_set"`
	Counters   []Counter   `yaml:"counters"`
}

// Device attached to a category.
type Device struct {
	Name  string `yaml:"name"`
	Cores uint16 `yaml:"cores"`
}

// CounterSet attached to a category.
type CounterSet struct {
	Name  string `yaml:"name"`
	Count uint16 `yaml:"count"`
}

// Counter definition.
type Counter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Units       string `yaml:"units"`

	// Class is "delta" (default) or "absolute".
	Class string `yaml:"class"`

	// Interpolation is "step" (default) or "linear".
	Interpolation string `yaml:"interpolation"`

	Multiplier float64 `yaml:"multiplier"`
	Cores      uint16  `yaml:"cores"`

	// Backend and LocalID map the counter to a backend-local id. A multi-core
	// counter maps LocalID+i to each of its UIDs.
	Backend string  `yaml:"backend"`
	LocalID *uint16 `yaml:"local_id"`
}

// Validate checks enum fields. Names are validated on registration.
func (d Directory) Validate() error {
	for _, cat := range d.Categories {
		for _, c := range cat.Counters {
			if _, err := c.class(); err != nil {
				return err
			}
			if _, err := c.interpolation(); err != nil {
				return err
			}
			if c.LocalID != nil && c.Backend == "" {
				return fmt.Errorf("%w: counter %q has local_id without backend", ErrInvalid, c.Name)
			}
		}
	}
	return nil
}

func (c Counter) class() (directory.CounterClass, error) {
	switch c.Class {
	case "", "delta":
		return directory.ClassDelta, nil
	case "absolute":
		return directory.ClassAbsolute, nil
	default:
		return 0, fmt.Errorf("%w: counter %q class %q", ErrInvalid, c.Name, c.Class)
	}
}

func (c Counter) interpolation() (directory.Interpolation, error) {
	switch c.Interpolation {
	case "", "step":
		return directory.InterpolationStep, nil
	case "linear":
		return directory.InterpolationLinear, nil
	default:
		return 0, fmt.Errorf("%w: counter %q interpolation %q", ErrInvalid, c.Name, c.Interpolation)
	}
}

// ApplyDirectory registers every definition in d with dir. Backend counters
// with a local id are recorded in ids, which may be nil if there are none.
// ApplyDirectory stops at the first registration error.
func ApplyDirectory(d Directory, dir *directory.Directory, ids *capture.IDMap) error {
	for _, cat := range d.Categories {
		if _, err := dir.RegisterCategory(cat.Name); err != nil {
			return err
		}
		if cat.Device != nil {
			if _, err := dir.RegisterDevice(cat.Device.Name, cat.Device.Cores, cat.Name); err != nil {
				return err
			}
		}
		if cat.CounterSet != nil {
			if _, err := dir.RegisterCounterSet(cat.CounterSet.Name, cat.CounterSet.Count, cat.Name); err != nil {
				return err
			}
		}

		for _, c := range cat.Counters {
			class, err := c.class()
			if err != nil {
				return err
			}
			interp, err := c.interpolation()
			if err != nil {
				return err
			}
			multiplier := c.Multiplier
			if multiplier == 0 {
				multiplier = 1
			}

			counter, err := dir.RegisterCounter(c.Backend, cat.Name, class, interp, multiplier,
				c.Name, c.Description, directory.CounterOptions{Units: c.Units, NumberOfCores: c.Cores})
			if err != nil {
				return err
			}

			if c.LocalID != nil {
				if ids == nil {
					return fmt.Errorf("%w: counter %q needs an id map", ErrInvalid, c.Name)
				}
				for i := range counter.Cores() {
					ids.RegisterMapping(counter.UID+uint16(i), *c.LocalID+uint16(i), c.Backend)
				}
			}
		}
	}
	return nil
}
