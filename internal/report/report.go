// Package report renders run and verification summaries through Liquid
// templates and mirrors them into the structured log.
package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/channel-warehouse/internal/collector"
	"github.com/ignite/channel-warehouse/internal/loader"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
	"github.com/ignite/channel-warehouse/internal/warehouse"
)

//go:embed templates/*.liquid
var templates embed.FS

// Renderer holds the compiled report templates.
type Renderer struct {
	engine *liquid.Engine
	run    *liquid.Template
	verify *liquid.Template
}

// NewRenderer compiles the embedded templates. A non-empty runTemplatePath
// replaces the run report template.
func NewRenderer(runTemplatePath string) (*Renderer, error) {
	engine := liquid.NewEngine()

	// Left-justify in a fixed column: {{ name | ljust: 24 }}
	engine.RegisterFilter("ljust", func(s string, width int) string {
		if n := len([]rune(s)); n < width {
			return s + strings.Repeat(" ", width-n)
		}
		return s
	})

	r := &Renderer{engine: engine}

	runSrc, err := templates.ReadFile("templates/run.liquid")
	if err != nil {
		return nil, err
	}
	if runTemplatePath != "" {
		if runSrc, err = os.ReadFile(runTemplatePath); err != nil {
			return nil, fmt.Errorf("read report template: %w", err)
		}
	}
	if r.run, err = r.parse(runSrc); err != nil {
		return nil, fmt.Errorf("parse run template: %w", err)
	}

	verifySrc, err := templates.ReadFile("templates/verify.liquid")
	if err != nil {
		return nil, err
	}
	if r.verify, err = r.parse(verifySrc); err != nil {
		return nil, fmt.Errorf("parse verify template: %w", err)
	}
	return r, nil
}

func (r *Renderer) parse(src []byte) (*liquid.Template, error) {
	tpl, err := r.engine.ParseString(string(src))
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

func (r *Renderer) render(tpl *liquid.Template, b liquid.Bindings) (string, error) {
	out, err := tpl.RenderString(b)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}

// RunReport gathers what each stage of a run did. Stages that did not run
// are nil.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Collect    *collector.Result
	Load       *loader.LakeResult
	Build      *warehouse.Result
}

// RenderRun renders rep with the run template.
func (r *Renderer) RenderRun(rep RunReport) (string, error) {
	return r.render(r.run, rep.bindings())
}

func (rep RunReport) bindings() liquid.Bindings {
	b := liquid.Bindings{
		"run_id":   rep.RunID,
		"duration": rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond).String(),
	}
	if rep.Collect != nil {
		c := toMap(rep.Collect)
		channels := make([]map[string]any, len(rep.Collect.Channels))
		for i, ch := range rep.Collect.Channels {
			channels[i] = toMap(ch)
			if ch.Err != nil {
				channels[i]["error"] = ch.Err.Error()
			}
		}
		c["channels"] = channels
		b["collect"] = c
	}
	if rep.Load != nil {
		skipped := make([]map[string]any, len(rep.Load.Skipped))
		for i, s := range rep.Load.Skipped {
			skipped[i] = map[string]any{"key": s.Key, "error": s.Err.Error()}
		}
		l := toMap(rep.Load)
		l["skipped"] = skipped
		b["load"] = l
	}
	if rep.Build != nil {
		b["build"] = toMap(rep.Build)
	}
	return b
}

// LogRun writes the run counts as one structured log line.
func LogRun(rep RunReport) {
	kv := []interface{}{"run_id", rep.RunID, "duration", rep.FinishedAt.Sub(rep.StartedAt).String()}
	if c := rep.Collect; c != nil {
		kv = append(kv, "new_raw_collected", c.Inserted, "raw_already_seen", c.Skipped,
			"attachments", c.Attachments, "failed_channels", c.Failed)
	}
	if l := rep.Load; l != nil {
		kv = append(kv, "batches_loaded", l.Batches, "new_raw_loaded", l.Inserted, "batches_skipped", len(l.Skipped))
	}
	if b := rep.Build; b != nil {
		kv = append(kv, "new_channels", b.ChannelsInserted, "updated_channels", b.ChannelsUpdated,
			"new_dates", b.DatesInserted, "new_facts", b.FactsInserted,
			"existing_facts", b.FactsSkipped, "unresolved", b.Unresolved)
	}
	logger.Info("run report", kv...)
}

// toMap exposes a value to templates under its JSON field names.
func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}
