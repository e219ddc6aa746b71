// Package scan runs a complete privacy compliance scan of one application tree.
package scan

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/picoscan/internal/aggregate"
	"github.com/jonathan/picoscan/internal/compliance"
	"github.com/jonathan/picoscan/internal/corpus"
	"github.com/jonathan/picoscan/internal/logger"
	"github.com/jonathan/picoscan/internal/manifest"
	"github.com/jonathan/picoscan/internal/matcher"
	"github.com/jonathan/picoscan/internal/rules"
	"github.com/jonathan/picoscan/internal/types"
)

// Progress steps reported through Options.OnProgress
const (
	StepRules    = "rules"
	StepCorpus   = "corpus"
	StepManifest = "manifest"
	StepIndex    = "index"
	StepSDK      = "sdk"
	StepDone     = "done"
)

// ProgressEvent represents a progress update during a scan
type ProgressEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	Content any    `json:"content,omitempty"`
}

// ProgressCallback is called when scan progress occurs. It may be called from
// several goroutines at once.
type ProgressCallback func(event ProgressEvent)

// Options holds configuration for one scan
type Options struct {
	Root       string
	RulesPath  string
	Database   *rules.Database // used instead of RulesPath when set
	Corpus     corpus.Options
	Workers    int // bound for both indexing and per-SDK evaluation; defaults to GOMAXPROCS
	Logger     hclog.Logger
	OnProgress ProgressCallback
}

func emitProgress(opts *Options, step, message string, content any) {
	if opts.OnProgress != nil {
		opts.OnProgress(ProgressEvent{Step: step, Message: message, Content: content})
	}
}

// Run scans opts.Root against the rule database and returns the assembled
// result. A rule database that fails to load, an unusable root or a cancelled
// context fail the scan; unreadable files and broken patterns only add
// diagnostics.
func Run(ctx context.Context, opts Options) (*types.ScanResult, error) {
	log := logger.OrNull(opts.Logger).Named("scan")

	db := opts.Database
	if db == nil {
		var err error
		db, err = rules.Load(opts.RulesPath)
		if err != nil {
			return nil, err
		}
	}
	defs := db.AllDefinitions()
	log.Info("rule database loaded", "source", db.Source(), "sdks", len(defs))
	emitProgress(&opts, StepRules, fmt.Sprintf("Loaded %d SDK definitions", len(defs)), nil)

	copts := opts.Corpus
	if copts.Logger == nil {
		copts.Logger = log.Named("corpus")
	}
	c, err := corpus.Build(ctx, opts.Root, copts)
	if err != nil {
		return nil, err
	}
	diagnostics := make([]string, 0, len(c.Errors()))
	for _, ioErr := range c.Errors() {
		diagnostics = append(diagnostics, ioErr.Error())
	}
	log.Info("corpus built", "root", c.Root(), "files", c.Len(), "bytes", c.Bytes(), "errors", len(diagnostics))
	emitProgress(&opts, StepCorpus, fmt.Sprintf("Indexed %d files", c.Len()), nil)

	m, err := manifest.FromCorpus(c)
	if err != nil {
		log.Warn("manifest not inspected", "error", err)
		diagnostics = append(diagnostics, err.Error())
	}
	app := m.AppInfo()
	values := m.Values()
	if app != nil {
		emitProgress(&opts, StepManifest, fmt.Sprintf("Application %s", app.Package), app)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	mt := matcher.Compile(defs, matcher.Options{Workers: workers, Logger: log.Named("matcher")})
	idx, err := mt.Index(ctx, c)
	if err != nil {
		return nil, err
	}
	emitProgress(&opts, StepIndex, "Signatures matched", nil)

	results := make([]types.SDKResult, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, def := range defs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev := idx.Match(def)
			findings := compliance.Evaluate(def, ev)
			res := aggregate.Aggregate(def, ev, findings)
			results[i] = aggregate.WithManifest(res, def, values)

			log.Debug("sdk evaluated", "sdk", def.ID, "status", res.Metadata.Status,
				"found", len(res.FoundAPIs), "missing", len(res.MissingAPIs), "pvps", len(res.PVPsTriggered))
			emitProgress(&opts, StepSDK, fmt.Sprintf("%s: %s", def.ID, res.Metadata.Status), results[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	result := aggregate.Assemble(uuid.New().String(), c.Root(), app, results, diagnostics)
	s := aggregate.Summarize(result)
	log.Info("scan complete", "scan_id", result.ScanID, "used_sdks", s.UsedSDKs, "findings", s.Findings)
	emitProgress(&opts, StepDone, fmt.Sprintf("%d findings", s.Findings), nil)
	return &result, nil
}
