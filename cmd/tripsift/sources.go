package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tripsift-dev/tripsift/pkg/tripsift"
)

// photoFile reads a photo library export: a JSON array of photo assets.
type photoFile struct {
	path string
}

func (p *photoFile) Photos(_ context.Context) ([]tripsift.PhotoAsset, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("reading photo export: %w", err)
	}
	var assets []tripsift.PhotoAsset
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("decoding photo export %s: %w", p.path, err)
	}
	return assets, nil
}

// emailFile reads a mailbox export: a JSON array of messages.
type emailFile struct {
	path string
}

func (e *emailFile) Messages(_ context.Context) ([]tripsift.EmailMessage, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("reading mailbox export: %w", err)
	}
	var messages []tripsift.EmailMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decoding mailbox export %s: %w", e.path, err)
	}
	return messages, nil
}
