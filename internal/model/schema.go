package model

import "strings"

// SetupSQL runs before AutoMigrate on postgres.
var SetupSQL = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
}

// PostMigrationSQL adds what AutoMigrate does not express. Every statement is idempotent.
var PostMigrationSQL = []string{
	`ALTER TABLE chat_sessions ALTER COLUMN id SET DEFAULT gen_random_uuid();`,
	`ALTER TABLE messages ALTER COLUMN id SET DEFAULT gen_random_uuid();`,
	`DO $$ BEGIN
	  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'messages_role_check') THEN
	    ALTER TABLE messages ADD CONSTRAINT messages_role_check CHECK (role IN ('user','model'));
	  END IF;
	END $$;`,
}

const schemaDDL = `-- chat_sessions
CREATE TABLE IF NOT EXISTS chat_sessions (
  id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
  app_id text NOT NULL,
  client_id text NOT NULL,
  title text NOT NULL,
  created_at timestamp with time zone DEFAULT now()
);

-- messages
CREATE TABLE IF NOT EXISTS messages (
  id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
  session_id uuid NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
  role text NOT NULL CHECK (role IN ('user','model')),
  content text NOT NULL,
  thinking_process text,
  sources jsonb,
  suggested_replies jsonb,
  generated_with_thinking boolean NOT NULL DEFAULT false,
  generated_with_search boolean NOT NULL DEFAULT false,
  created_at timestamp with time zone DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_app_id ON chat_sessions(app_id);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_client_id ON chat_sessions(client_id);
CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
`

// SchemaSQL is the full DDL for provisioning the store by hand.
func SchemaSQL() string {
	return strings.Join(SetupSQL, "\n") + "\n\n" + schemaDDL
}
