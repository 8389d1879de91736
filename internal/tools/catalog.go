// Package tools maps the externally exposed tool names to session engine
// calls. Handlers do exactly two things: validate parameters against the
// tool's schema, and delegate. Every call returns a result envelope; no
// error escapes past Call.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"useaid/internal/config"
	"useaid/internal/session"
	"useaid/internal/stats"
	"useaid/internal/store"
)

// Result is the envelope every tool call returns.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one entry of a result envelope.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) Result {
	return Result{Content: []Content{{Type: "text", Text: text}}}
}

func errorResult(text string) Result {
	r := textResult(text)
	r.IsError = true
	return r
}

func jsonResult(v any) Result {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return textResult(string(b))
}

// tool is one catalog entry.
type tool struct {
	schema *jsonschema.Schema
	run    func(params json.RawMessage) Result
}

// Catalog is the closed set of tool handlers over one engine.
type Catalog struct {
	engine *session.Engine
	paths  store.Paths
	cfg    *config.Config
	byName map[string]tool
}

// New builds the catalog for one transport's engine.
func New(engine *session.Engine, paths store.Paths, cfg *config.Config) *Catalog {
	c := &Catalog{engine: engine, paths: paths, cfg: cfg}
	c.byName = map[string]tool{
		"start":           {mustCompile("start", startSchema), c.start},
		"heartbeat":       {mustCompile("heartbeat", heartbeatSchema), c.heartbeat},
		"end":             {mustCompile("end", endSchema), c.end},
		"seal_active":     {mustCompile("seal_active", emptySchema), c.sealActive},
		"backup":          {mustCompile("backup", emptySchema), c.backup},
		"restore":         {mustCompile("restore", restoreSchema), c.restore},
		"stats":           {mustCompile("stats", emptySchema), c.stats},
		"list_milestones": {mustCompile("list_milestones", emptySchema), c.listMilestones},
		"status":          {mustCompile("status", emptySchema), c.status},
	}
	return c
}

// Names returns the catalog's tool names, for discovery responses.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	return names
}

// Call dispatches one tool invocation. Unknown tools, schema violations and
// handler failures all come back as isError envelopes.
func (c *Catalog) Call(name string, params json.RawMessage) Result {
	t, ok := c.byName[name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var instance any
	if err := json.Unmarshal(params, &instance); err != nil {
		return errorResult(fmt.Sprintf("invalid params: %v", err))
	}
	if err := t.schema.Validate(instance); err != nil {
		return errorResult(fmt.Sprintf("invalid params for %s: %v", name, err))
	}
	return t.run(params)
}

// =============================================================================
// lifecycle tools
// =============================================================================

func (c *Catalog) start(params json.RawMessage) Result {
	var p session.StartParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult(fmt.Sprintf("invalid params: %v", err))
	}
	res, err := c.engine.Start(p)
	if err != nil {
		return engineError(err, "")
	}
	return jsonResult(res)
}

func (c *Catalog) heartbeat(json.RawMessage) Result {
	res, err := c.engine.Heartbeat()
	if err != nil {
		return engineError(err, "No active session")
	}
	return jsonResult(res)
}

func (c *Catalog) end(params json.RawMessage) Result {
	var p session.EndParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult(fmt.Sprintf("invalid params: %v", err))
	}
	res, err := c.engine.End(p)
	if err != nil {
		return engineError(err, "No active session to end")
	}
	return jsonResult(res)
}

func (c *Catalog) sealActive(json.RawMessage) Result {
	sealed, err := c.engine.SealActive()
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(map[string]int{"sealed": sealed})
}

// =============================================================================
// backup / restore
// =============================================================================

func (c *Catalog) backup(json.RawMessage) Result {
	b, err := c.engine.Backup()
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(b)
}

func (c *Catalog) restore(params json.RawMessage) Result {
	var p struct {
		Backup *session.Backup `json:"backup"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult(fmt.Sprintf("invalid params: %v", err))
	}
	res, err := c.engine.Restore(p.Backup)
	if err != nil {
		return engineError(err, "")
	}
	return jsonResult(res)
}

// =============================================================================
// read-only tools
// =============================================================================

func (c *Catalog) stats(json.RawMessage) Result {
	return jsonResult(stats.Compute(c.paths.LoadSeals(), time.Now()))
}

func (c *Catalog) listMilestones(json.RawMessage) Result {
	milestones := c.paths.LoadMilestones()
	if milestones == nil {
		milestones = []store.Milestone{}
	}
	return jsonResult(milestones)
}

func (c *Catalog) status(json.RawMessage) Result {
	published, unpublished := 0, 0
	for _, m := range c.paths.LoadMilestones() {
		if m.Published {
			published++
		} else {
			unpublished++
		}
	}
	return jsonResult(map[string]any{
		"active_sessions":        c.engine.Depth(),
		"total_sessions":         len(c.paths.LoadSeals()),
		"milestones_published":   published,
		"milestones_unpublished": unpublished,
		"disk_usage_bytes":       c.paths.DiskUsage(),
		"signing_available":      c.engine.SigningAvailable(),
		"config":                 c.cfg.Snapshot(),
	})
}

// engineError maps engine failures to the envelope contract. A missing
// session is a plain informational message, not an error; everything else
// is isError.
func engineError(err error, noSessionText string) Result {
	if errors.Is(err, session.ErrNoActiveSession) && noSessionText != "" {
		return textResult(noSessionText)
	}
	return errorResult(err.Error())
}
