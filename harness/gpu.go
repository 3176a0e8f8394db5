package harness

import (
	"context"
	"fmt"
	"strings"
)

// GPUProber identifies the accelerator timing expectations are matched against.
type GPUProber interface {
	Name(ctx context.Context) (string, error)
}

// StaticProber reports a fixed model name.
type StaticProber string

// Name returns the configured model name.
func (p StaticProber) Name(context.Context) (string, error) {
	return string(p), nil
}

// SMIProber asks nvidia-smi for the first device's model name.
type SMIProber struct {
	Source LineSource
	Binary string // defaults to "nvidia-smi"
}

// Name returns the first non-empty line of
// `nvidia-smi --query-gpu=name --format=csv,noheader`.
func (p SMIProber) Name(ctx context.Context) (string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "nvidia-smi"
	}
	cmd := Command{Name: bin, Args: []string{"--query-gpu=name", "--format=csv,noheader"}}
	var first string
	err := p.Source.Stream(ctx, cmd, func(line string) {
		if first == "" {
			first = strings.TrimSpace(line)
		}
	})
	if err != nil {
		return "", fmt.Errorf("probe gpu: %w", err)
	}
	if first == "" {
		return "", fmt.Errorf("probe gpu: %s reported no devices", bin)
	}
	return first, nil
}
