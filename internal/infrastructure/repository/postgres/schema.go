package postgres

const schemaLockID = int64(2026101701)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	document_type_id TEXT,
	document_type_code TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	candidates JSONB NOT NULL DEFAULT '[]'::jsonb,
	ocr_status TEXT NOT NULL DEFAULT 'pending',
	ocr_text TEXT,
	ocr_pages JSONB NOT NULL DEFAULT '[]'::jsonb,
	indexed BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_deleted_at ON documents(deleted_at) WHERE deleted_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS extracted_fields (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	field_name TEXT NOT NULL,
	value_kind TEXT NOT NULL,
	value_text TEXT NOT NULL DEFAULT '',
	value_number DOUBLE PRECISION,
	value_date DATE,
	raw_value TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	source_rule_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extracted_fields_document ON extracted_fields(document_id, position);

CREATE TABLE IF NOT EXISTS reminders (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	owner_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	due_date DATE NOT NULL,
	alert_offsets_days JSONB NOT NULL DEFAULT '[]'::jsonb,
	auto_created BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, kind, due_date)
);

CREATE TABLE IF NOT EXISTS document_types (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	auto_assign_threshold DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS keyword_rules (
	id TEXT PRIMARY KEY,
	document_type_id TEXT NOT NULL REFERENCES document_types(id) ON DELETE CASCADE,
	keyword TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL CHECK (weight >= 0),
	context TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS signal_rules (
	id TEXT PRIMARY KEY,
	document_type_id TEXT NOT NULL REFERENCES document_types(id) ON DELETE CASCADE,
	pattern TEXT NOT NULL,
	flags TEXT NOT NULL DEFAULT '',
	weight DOUBLE PRECISION NOT NULL CHECK (weight >= 0),
	label TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS extraction_rules (
	id TEXT PRIMARY KEY,
	document_type_id TEXT NOT NULL REFERENCES document_types(id) ON DELETE CASCADE,
	field_name TEXT NOT NULL,
	pattern TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 100,
	post_process TEXT NOT NULL DEFAULT 'text'
);

CREATE TABLE IF NOT EXISTS rule_config (
	id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	version TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
