//go:build gocv

package main

import (
	"strconv"

	"github.com/Brownie44l1/edge-classifier/internal/capture"
	"github.com/Brownie44l1/edge-classifier/internal/pixel"
)

// openCamera opens a V4L2 index ("0") or a stream URL.
func openCamera(device string, w, h int, format pixel.Format) (capture.Device, error) {
	if id, err := strconv.Atoi(device); err == nil {
		return capture.OpenCamera(id, w, h, format)
	}
	return capture.OpenCamera(device, w, h, format)
}
