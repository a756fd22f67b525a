package postgres

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Collection tables: one JSONB document per record. The id column
			-- mirrors doc->>'id' and is write-once.
			CREATE TABLE templates (
				id TEXT PRIMARY KEY,
				doc JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE onboardings (
				id TEXT PRIMARY KEY,
				doc JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			-- GIN indexes back the doc @> filter queries.
			CREATE INDEX idx_templates_doc ON templates USING GIN (doc jsonb_path_ops);
			CREATE INDEX idx_onboardings_doc ON onboardings USING GIN (doc jsonb_path_ops);

			CREATE INDEX idx_templates_name ON templates ((doc->>'name'));
			CREATE INDEX idx_onboardings_template_id ON onboardings ((doc->>'template_id'));
			CREATE INDEX idx_onboardings_status ON onboardings ((doc->>'status'));
		`,
		2: `
			-- Change notifications: every write fires a NOTIFY on a
			-- per-collection channel. The payload stays small on purpose
			-- (NOTIFY caps payloads at 8000 bytes); listeners re-fetch.
			CREATE FUNCTION onramp_notify_change() RETURNS trigger AS $fn$
			BEGIN
				PERFORM pg_notify(
					'onramp_changes_' || TG_TABLE_NAME,
					json_build_object('collection', TG_TABLE_NAME, 'op', LOWER(TG_OP))::text
				);
				RETURN NULL;
			END;
			$fn$ LANGUAGE plpgsql;

			CREATE TRIGGER templates_notify_change
				AFTER INSERT OR UPDATE OR DELETE ON templates
				FOR EACH ROW EXECUTE FUNCTION onramp_notify_change();

			CREATE TRIGGER onboardings_notify_change
				AFTER INSERT OR UPDATE OR DELETE ON onboardings
				FOR EACH ROW EXECUTE FUNCTION onramp_notify_change();
		`,
	}
}
