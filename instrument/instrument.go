package instrument

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ardnew/softtmc/bridge"
	"github.com/ardnew/softtmc/config"
	"github.com/ardnew/softtmc/hal/sim"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/tmc"
	"github.com/ardnew/softtmc/usbtmc"
)

// Options configures a simulated instrument.
type Options struct {
	Size         int           // engine output buffer
	Period       time.Duration // engine tick
	Identity     tmc.Identity
	PL           sim.PLConfig
	Flash        sim.FlashConfig
	ReplyTimeout time.Duration // line bridge only
}

// DefaultOptions returns options for a 4KB instrument with default identity.
func DefaultOptions() Options {
	return Options{
		Size:     4096,
		Period:   tmc.DefaultPeriod,
		Identity: tmc.DefaultIdentity(),
	}
}

// OptionsFromConfig converts a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Size:         cfg.Engine.BufferSize,
		Period:       cfg.Engine.Period,
		Identity:     cfg.TMCIdentity(),
		PL:           cfg.SimPL(),
		Flash:        cfg.SimFlash(),
		ReplyTimeout: cfg.Transport.ReplyTimeout,
	}
}

// frontend carries commands to the engine and replies back.
type frontend interface {
	TxData() []byte
	Reply(n int, tag uint8)
	Run(ctx context.Context) error
}

// Instrument is a running simulated instrument.
type Instrument struct {
	PL     *sim.PL
	Flash  *sim.Flash
	Engine *tmc.Engine

	opts  Options
	front frontend
	host  *usbtmc.LoopPipe
	size  int
}

func build(opts Options, front frontend) *Instrument {
	if opts.Period <= 0 {
		opts.Period = tmc.DefaultPeriod
	}
	i := &Instrument{
		PL:    sim.NewPL(opts.PL),
		Flash: sim.NewFlash(opts.Flash),
		opts:  opts,
		front: front,
		size:  len(front.TxData()),
	}
	i.Engine = tmc.New(front.TxData(), front, i.PL, i.Flash, tmc.WithIdentity(opts.Identity))
	return i
}

// NewUSB creates an instrument behind a USBTMC transport on pipe.
func NewUSB(opts Options, pipe usbtmc.Pipe) *Instrument {
	tr := usbtmc.NewTransport(pipe, opts.Size)
	i := build(opts, tr)
	tr.SetHandler(i.Engine)
	return i
}

// NewLoopback creates an instrument behind a USBTMC transport on an
// in-memory pipe. Use Client to talk to it.
func NewLoopback(opts Options) *Instrument {
	host, dev := usbtmc.Loopback()
	i := NewUSB(opts, dev)
	i.host = host
	return i
}

// NewLine creates an instrument behind a line bridge on rw.
func NewLine(opts Options, rw io.ReadWriter, mode bridge.Mode) *Instrument {
	b := bridge.New(rw, opts.Size, mode)
	if opts.ReplyTimeout > 0 {
		b.SetReplyTimeout(opts.ReplyTimeout)
	}
	i := build(opts, b)
	b.SetHandler(i.Engine)
	return i
}

// Client returns a host client for a loopback instrument, or nil for any
// other instrument.
func (i *Instrument) Client() *usbtmc.Client {
	if i.host == nil {
		return nil
	}
	return usbtmc.NewClient(i.host, i.size)
}

// LoadImage loads a flash image file.
func (i *Instrument) LoadImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open flash image: %w", err)
	}
	defer f.Close()
	return i.Flash.Load(f)
}

// SaveImage writes the flash contents to a file.
func (i *Instrument) SaveImage(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create flash image: %w", err)
	}
	if err := i.Flash.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Run runs the engine and the front end until ctx is cancelled or the front
// end stops.
func (i *Instrument) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		i.Engine.Run(ctx, i.opts.Period)
	}()

	pkg.LogInfo(pkg.ComponentCLI, "instrument running",
		"identity", i.opts.Identity.String(), "buffer", i.size)
	err := i.front.Run(ctx)
	cancel()
	<-done
	return err
}

// Close releases the loopback pipe.
func (i *Instrument) Close() error {
	if i.host != nil {
		return i.host.Close()
	}
	return nil
}
