package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create key-value table backing the workflow store
			CREATE TABLE kv_entries (
				key TEXT PRIMARY KEY,
				value BYTEA NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_kv_entries_key_prefix ON kv_entries (key text_pattern_ops);
		`,
	}
}
