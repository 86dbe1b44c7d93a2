package cache

// Schema contains SQL schema definitions for the cache
const Schema = `
-- Messages table
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uid INTEGER NOT NULL,
    folder TEXT NOT NULL,
    sender_email TEXT,
    sender_name TEXT,
    subject TEXT,
    date DATETIME NOT NULL,
    snippet TEXT,
    cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(folder, uid)
);

-- Create indexes for faster queries
CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages(folder);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
CREATE INDEX IF NOT EXISTS idx_messages_sender_email ON messages(sender_email);

-- Full-text search index
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject,
    sender_email,
    sender_name,
    snippet,
    content='messages',
    content_rowid='id'
);

-- Triggers for FTS
CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, subject, sender_email, sender_name, snippet)
    VALUES (new.id, new.subject, new.sender_email, new.sender_name, new.snippet);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE ON messages BEGIN
    UPDATE messages_fts SET
        subject = new.subject,
        sender_email = new.sender_email,
        sender_name = new.sender_name,
        snippet = new.snippet
    WHERE rowid = new.id;
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
    DELETE FROM messages_fts WHERE rowid = old.id;
END;
`
