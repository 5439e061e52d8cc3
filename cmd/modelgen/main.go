// Command modelgen writes the built-in reference model as a blob file that
// the server can load with model_path.
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/edge-classifier/internal/model"
	"github.com/Brownie44l1/edge-classifier/internal/monitoring"
	"github.com/Brownie44l1/edge-classifier/internal/tensor"
)

func main() {
	out := flag.String("out", "model.ecnn", "Output path")
	schema := flag.Uint("schema", uint(model.SchemaVersion), "Schema version written in the header")
	channels := flag.String("channels", "gray", "Input channel order: gray or rgb")
	flag.Parse()

	log := monitoring.Logger()

	ch, err := tensor.ParseChannelOrder(*channels)
	if err != nil {
		log.WithError(err).Fatal("bad -channels")
	}
	g := model.ReferenceFor(ch)
	blob, err := model.EncodeVersion(g, uint32(*schema))
	if err != nil {
		log.WithError(err).Fatal("failed to encode model")
	}
	if err := os.WriteFile(*out, blob, 0o644); err != nil {
		log.WithError(err).Fatal("failed to write model")
	}

	log.WithFields(logrus.Fields{
		"path":     *out,
		"bytes":    len(blob),
		"model":    g.Name,
		"revision": g.Revision,
		"schema":   *schema,
		"channels": ch,
		"arena":    g.RequiredArenaBytes(model.TensorAlignment),
	}).Info("model written")
	if uint32(*schema) != model.SchemaVersion {
		log.Warnf("schema %d differs from runtime schema %d; the engine will refuse this blob", *schema, model.SchemaVersion)
	}
}
