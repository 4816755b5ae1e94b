package postgres

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestConfigValidateRejectsIdleAboveOpen(t *testing.T) {
	cfg := Config{URL: "postgres://x", PingTimeout: time.Second, MaxOpenConns: 2, MaxIdleConns: 3}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for idle > open")
	}
}

func TestConnURLAddsStatementTimeout(t *testing.T) {
	cfg := Config{URL: "postgres://u:p@localhost:5432/db?sslmode=disable", StatementTimeout: 1500 * time.Millisecond}
	got, err := cfg.connURL()
	if err != nil {
		t.Fatalf("connURL() err=%v", err)
	}
	if !strings.Contains(got, "statement_timeout=1500") || !strings.Contains(got, "sslmode=disable") {
		t.Fatalf("unexpected url %s", got)
	}

	dsn, err := withRuntimeParam("host=localhost dbname=db", "statement_timeout", "10")
	if err != nil {
		t.Fatalf("withRuntimeParam() err=%v", err)
	}
	if dsn != "host=localhost dbname=db statement_timeout=10" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func TestSchemaDeclaresConstraints(t *testing.T) {
	schema := Schema()
	for _, want := range []string{
		"workflow_runs_external_run_id_unique UNIQUE (external_run_id)",
		"workflow_runs_work_dir_unique UNIQUE (work_dir)",
		"storage_objects_identity_unique UNIQUE (bucket, object_key, version_id)",
		"app_users_email_unique UNIQUE (email)",
		"app_users_external_subject_unique UNIQUE (external_subject)",
		"run_inputs_pkey PRIMARY KEY (run_id, storage_object_id)",
		"run_outputs_pkey PRIMARY KEY (run_id, storage_object_id)",
		"REFERENCES app_users (id) ON DELETE RESTRICT",
		"REFERENCES workflows (id) ON DELETE SET NULL",
		"run_metrics_run_id_foreign FOREIGN KEY (run_id) REFERENCES workflow_runs (id) ON DELETE CASCADE",
		"run_status_events_run_id_foreign FOREIGN KEY (run_id) REFERENCES workflow_runs (id) ON DELETE CASCADE",
	} {
		if !strings.Contains(schema, want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}
