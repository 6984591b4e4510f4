// Package board holds the kernel profiles of the supported parts.
package board

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/inhies/go-bytesize"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"titan/hal"
	"titan/hal/armv7m"
	"titan/kernel"
)

//go:embed boards.yaml
var rawBoards []byte

var boards Boards

var (
	ErrUnknownBoard = errors.New("unknown board")
	ErrUnknownCore  = errors.New("unknown core")
)

// Boards is the list of known profiles.
type Boards []Board

// Board is one core of one part.
type Board struct {
	Name           string   `yaml:"name"`
	Chips          []string `yaml:"chips"`
	Core           string   `yaml:"core"`
	Peer           string   `yaml:"peer"`
	CPUFreq        uint32   `yaml:"cpuFreq"`
	TickFreq       uint32   `yaml:"tickFreq"`
	SchedFreq      uint32   `yaml:"schedFreq"`
	MaxThreads     int      `yaml:"maxThreads"`
	MinStack       string   `yaml:"minStack"`
	IdleStack      string   `yaml:"idleStack"`
	MinPriority    int32    `yaml:"minPriority"`
	MaxPriority    int32    `yaml:"maxPriority"`
	StrictPriority bool     `yaml:"strictPriority"`
	SerialBaud     uint32   `yaml:"serialBaud"`
}

// All returns every known board.
func All() Boards {
	return boards
}

// Find looks a board up by name.
func Find(name string) (Board, error) {
	return boards.Find(name)
}

func (bs Boards) Find(name string) (Board, error) {
	name = strings.ToLower(name)
	i := slices.IndexFunc(bs, func(b Board) bool { return b.Name == name })
	if i < 0 {
		return Board{}, fmt.Errorf("board %q: %w", name, ErrUnknownBoard)
	}
	return bs[i], nil
}

// FindByChip returns the first board listing chip.
func (bs Boards) FindByChip(chip string) (Board, error) {
	chip = strings.ToLower(chip)
	for _, b := range bs {
		if slices.Contains(b.Chips, chip) {
			return b, nil
		}
	}
	return Board{}, fmt.Errorf("chip %q: %w", chip, ErrUnknownBoard)
}

// Names lists board names in file order.
func (bs Boards) Names() []string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.Name
	}
	return names
}

// CoreID maps the core field to a core.
func (b Board) CoreID() (hal.CoreID, error) {
	switch strings.ToLower(b.Core) {
	case "cm7":
		return hal.CoreCM7, nil
	case "cm4":
		return hal.CoreCM4, nil
	}
	return 0, fmt.Errorf("board %s core %q: %w", b.Name, b.Core, ErrUnknownCore)
}

// SEV returns the interrupt line this board's core receives doorbells on.
func (b Board) SEV() armv7m.IRQ {
	id, err := b.CoreID()
	if err != nil {
		return -1
	}
	return id.SEVIRQ()
}

// PeerBoard returns the profile of the other core, if any.
func (b Board) PeerBoard() (Board, bool) {
	if b.Peer == "" {
		return Board{}, false
	}
	p, err := Find(b.Peer)
	return p, err == nil
}

// KernelConfig converts the profile into a validated kernel configuration.
func (b Board) KernelConfig() (kernel.Config, error) {
	minStack, err := ParseSize(b.MinStack)
	if err != nil {
		return kernel.Config{}, fmt.Errorf("board %s minStack: %w", b.Name, err)
	}
	idleStack, err := ParseSize(b.IdleStack)
	if err != nil {
		return kernel.Config{}, fmt.Errorf("board %s idleStack: %w", b.Name, err)
	}
	cfg := kernel.Config{
		CPUFreq:        b.CPUFreq,
		TickFreq:       b.TickFreq,
		SchedFreq:      b.SchedFreq,
		MaxThreads:     b.MaxThreads,
		MinStack:       minStack,
		IdleStackSize:  idleStack,
		MinPriority:    b.MinPriority,
		MaxPriority:    b.MaxPriority,
		StrictPriority: b.StrictPriority,
	}
	if err := cfg.Validate(); err != nil {
		return kernel.Config{}, fmt.Errorf("board %s: %w", b.Name, err)
	}
	return cfg, nil
}

// ParseSize reads a size such as "512B" or "1KB".
func ParseSize(s string) (int, error) {
	size, err := bytesize.Parse(s)
	if err != nil {
		return 0, err
	}
	return int(size), nil
}

// FormatSize renders a byte count the way board files write them.
func FormatSize(n int) string {
	return bytesize.New(float64(n)).String()
}

func init() {
	var b struct {
		Elements Boards `yaml:"boards"`
	}
	if err := yaml.Unmarshal(rawBoards, &b); err != nil {
		panic(err)
	}
	boards = b.Elements
}
