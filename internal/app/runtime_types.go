package app

import (
	"io"
	"log/slog"

	"github.com/dwizi/wa-assistant/internal/config"
	"github.com/dwizi/wa-assistant/internal/delivery"
	"github.com/dwizi/wa-assistant/internal/gateway"
	"github.com/dwizi/wa-assistant/internal/orchestrator"
	"github.com/dwizi/wa-assistant/internal/scheduler"
	"github.com/dwizi/wa-assistant/internal/scripts"
	"github.com/dwizi/wa-assistant/internal/store"
	"github.com/dwizi/wa-assistant/internal/transcript"
	"github.com/dwizi/wa-assistant/internal/watcher"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	docs       store.DocumentStore
	scripts    *scripts.Catalog
	gateway    *gateway.Service
	dispatcher *delivery.Dispatcher
	transcript *transcript.Log
	delayer    *scheduler.Delayer
	digest     *scheduler.Digest
	engine     *orchestrator.Engine
	watcher    *watcher.Service
	input      io.Reader
	exitOnEOF  bool
	inbound    *inboundDedup
}

// Options carries the process streams: inbound JSON lines are read from
// Input, outbound messages are written to Output.
type Options struct {
	Input     io.Reader
	Output    io.Writer
	ExitOnEOF bool
}
