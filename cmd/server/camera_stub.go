//go:build !gocv

package main

import (
	"errors"

	"github.com/Brownie44l1/edge-classifier/internal/capture"
	"github.com/Brownie44l1/edge-classifier/internal/pixel"
)

func openCamera(string, int, int, pixel.Format) (capture.Device, error) {
	return nil, errors.New("camera source needs a build with -tags gocv")
}
