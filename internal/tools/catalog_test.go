package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"useaid/internal/config"
	"useaid/internal/session"
	"useaid/internal/store"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	paths := store.Paths{Base: t.TempDir()}
	if err := paths.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	return New(session.New(paths, cfg, nil), paths, cfg)
}

func call(t *testing.T, c *Catalog, name, params string) Result {
	t.Helper()
	return c.Call(name, json.RawMessage(params))
}

func text(t *testing.T, r Result) string {
	t.Helper()
	if len(r.Content) != 1 || r.Content[0].Type != "text" {
		t.Fatalf("envelope must hold exactly one text entry: %+v", r)
	}
	return r.Content[0].Text
}

func TestUnknownTool(t *testing.T) {
	c := testCatalog(t)
	r := call(t, c, "explode", `{}`)
	if !r.IsError {
		t.Error("unknown tool must be isError")
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	c := testCatalog(t)
	cases := map[string]string{
		"start":     `{"task_type": "coding", "tsak_type": "coding"}`,
		"heartbeat": `{"force": true}`,
		"end":       `{"langauges": ["go"]}`,
		"stats":     `{"verbose": true}`,
	}
	for name, params := range cases {
		r := call(t, c, name, params)
		if !r.IsError {
			t.Errorf("%s with unknown field should be rejected: %s", name, text(t, r))
		}
	}
}

func TestSchemaEnums(t *testing.T) {
	c := testCatalog(t)
	if r := call(t, c, "start", `{"task_type": "surfing"}`); !r.IsError {
		t.Error("unknown task_type should fail validation")
	}
	if r := call(t, c, "end", `{"milestones": [{"category": "feature"}]}`); !r.IsError {
		t.Error("milestone without title should fail validation")
	}
	if r := call(t, c, "end", `{"evaluation": {"prompt_quality": 6}}`); !r.IsError {
		t.Error("rating above 5 should fail validation")
	}
}

func TestLifecycleThroughCatalog(t *testing.T) {
	c := testCatalog(t)

	r := call(t, c, "start", `{"task_type": "coding", "client": "claude-code"}`)
	if r.IsError {
		t.Fatalf("start failed: %s", text(t, r))
	}
	var started session.StartResult
	if err := json.Unmarshal([]byte(text(t, r)), &started); err != nil {
		t.Fatalf("start result is not JSON: %v", err)
	}
	if started.SessionID == "" {
		t.Fatal("start result missing session_id")
	}

	r = call(t, c, "heartbeat", `{}`)
	if r.IsError {
		t.Fatalf("heartbeat failed: %s", text(t, r))
	}

	r = call(t, c, "end", `{"languages": ["go"], "files_touched_count": 2,
		"evaluation": {"prompt_quality": 4, "context_provided": 4, "scope_quality": 4,
		"independence_level": 4, "tools_leveraged": 3, "task_outcome": "completed"}}`)
	if r.IsError {
		t.Fatalf("end failed: %s", text(t, r))
	}
	var ended session.EndResult
	if err := json.Unmarshal([]byte(text(t, r)), &ended); err != nil {
		t.Fatal(err)
	}
	if ended.Score == nil {
		t.Error("evaluated session should carry a score")
	}
}

func TestNoActiveSessionIsNotAnError(t *testing.T) {
	c := testCatalog(t)

	r := call(t, c, "end", `{}`)
	if r.IsError {
		t.Error("end without session must not be isError")
	}
	if text(t, r) != "No active session to end" {
		t.Errorf("end message = %q", text(t, r))
	}

	r = call(t, c, "heartbeat", `{}`)
	if r.IsError {
		t.Error("heartbeat without session must not be isError")
	}
	if text(t, r) != "No active session" {
		t.Errorf("heartbeat message = %q", text(t, r))
	}
}

func TestEndIsIdempotentThroughCatalog(t *testing.T) {
	c := testCatalog(t)
	call(t, c, "start", `{}`)
	if r := call(t, c, "end", `{}`); r.IsError {
		t.Fatalf("first end failed: %s", text(t, r))
	}
	r := call(t, c, "end", `{}`)
	if r.IsError || text(t, r) != "No active session to end" {
		t.Errorf("second end should report no active session, got %+v", r)
	}
}

func TestSealActiveAndStats(t *testing.T) {
	c := testCatalog(t)
	call(t, c, "start", `{"client": "cursor"}`)

	r := call(t, c, "seal_active", `{}`)
	if r.IsError {
		t.Fatalf("seal_active failed: %s", text(t, r))
	}
	var sealed map[string]int
	if err := json.Unmarshal([]byte(text(t, r)), &sealed); err != nil {
		t.Fatal(err)
	}
	if sealed["sealed"] != 1 {
		t.Errorf("sealed = %d, want 1", sealed["sealed"])
	}

	r = call(t, c, "stats", `{}`)
	if r.IsError {
		t.Fatalf("stats failed: %s", text(t, r))
	}
	if !strings.Contains(text(t, r), `"total_sessions": 1`) {
		t.Errorf("stats should count the sealed session: %s", text(t, r))
	}
}

func TestBackupRestoreThroughCatalog(t *testing.T) {
	c := testCatalog(t)
	call(t, c, "start", `{}`)
	call(t, c, "end", `{}`)

	r := call(t, c, "backup", `{}`)
	if r.IsError {
		t.Fatalf("backup failed: %s", text(t, r))
	}
	blob := text(t, r)

	if r := call(t, c, "restore", `{}`); !r.IsError {
		t.Error("restore without backup field should fail validation")
	}

	r = call(t, c, "restore", `{"backup": `+blob+`}`)
	if r.IsError {
		t.Fatalf("restore failed: %s", text(t, r))
	}
	var res session.RestoreResult
	if err := json.Unmarshal([]byte(text(t, r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.SessionsAdded != 0 {
		t.Error("restoring our own backup should be a no-op")
	}
}

func TestStatusSnapshot(t *testing.T) {
	c := testCatalog(t)
	call(t, c, "start", `{}`)

	r := call(t, c, "status", `{}`)
	if r.IsError {
		t.Fatalf("status failed: %s", text(t, r))
	}
	var status map[string]any
	if err := json.Unmarshal([]byte(text(t, r)), &status); err != nil {
		t.Fatal(err)
	}
	if status["active_sessions"].(float64) != 1 {
		t.Errorf("active_sessions = %v, want 1", status["active_sessions"])
	}
	if _, ok := status["config"].(map[string]any); !ok {
		t.Error("status must embed the config snapshot")
	}
}
