package db

const (
	tableCostRecord = "cost_record"
	tableRun        = "run"
)

// SchemaSQL defines the cost mirror and run history tables.
const SchemaSQL = `
    -- ==========================================================================
    -- COST RECORDS (mirror of the JSONL cost ledgers)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS cost_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS pipeline ON cost_record TYPE string;
    DEFINE FIELD IF NOT EXISTS dataset ON cost_record TYPE string;
    DEFINE FIELD IF NOT EXISTS model ON cost_record TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON cost_record TYPE string ASSERT $value IN ["model", "search"];
    DEFINE FIELD IF NOT EXISTS tool_name ON cost_record TYPE string;
    DEFINE FIELD IF NOT EXISTS prompt_tokens ON cost_record TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS completion_tokens ON cost_record TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total_tokens ON cost_record TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS credits_used ON cost_record TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS run_id ON cost_record TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS ts ON cost_record TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS cost_record_triple ON cost_record FIELDS pipeline, dataset, model;
    DEFINE INDEX IF NOT EXISTS cost_record_run ON cost_record FIELDS run_id;
    DEFINE INDEX IF NOT EXISTS cost_record_ts ON cost_record FIELDS ts;

    -- ==========================================================================
    -- RUNS (one record per batch run, keyed by run id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS run_id ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS tool ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS dataset ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS model ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON run TYPE string ASSERT $value IN ["running", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS error ON run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS total ON run TYPE int;
    DEFINE FIELD IF NOT EXISTS processed ON run TYPE int;
    DEFINE FIELD IF NOT EXISTS skipped ON run TYPE int;
    DEFINE FIELD IF NOT EXISTS failed ON run TYPE int;
    DEFINE FIELD IF NOT EXISTS resumed ON run TYPE int;
    DEFINE FIELD IF NOT EXISTS invalidated ON run TYPE int;
    DEFINE FIELD IF NOT EXISTS failed_ids ON run TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS started_at ON run TYPE datetime;
    DEFINE FIELD IF NOT EXISTS completed_at ON run TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS run_tool ON run FIELDS tool, dataset;
    DEFINE INDEX IF NOT EXISTS run_started ON run FIELDS started_at;
`
