package sqlstore

// Identifiers are backtick-quoted: MySQL reserves `key`, and SQLite accepts
// the same quoting.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    format      TEXT NOT NULL,
    timestamp   TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS texts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    text        TEXT NOT NULL
)`,
	"CREATE TABLE IF NOT EXISTS `tables` (\n" + `    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    table_data  TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS images (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    image_path  TEXT NOT NULL
)`,
	"CREATE TABLE IF NOT EXISTS metadata (\n" + `    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    ` + "`key`" + `       TEXT NOT NULL,
    value       TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS links (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    link        TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_timestamp ON documents(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_texts_document     ON texts(document_id)`,
	"CREATE INDEX IF NOT EXISTS idx_tables_document    ON `tables`(document_id)",
	`CREATE INDEX IF NOT EXISTS idx_images_document    ON images(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_metadata_document  ON metadata(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_links_document     ON links(document_id)`,
}

// mysqlSchema keeps the indexes inline: MySQL has no CREATE INDEX IF NOT EXISTS.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
    id          VARCHAR(64)  NOT NULL PRIMARY KEY,
    name        VARCHAR(512) NOT NULL,
    format      VARCHAR(16)  NOT NULL,
    timestamp   VARCHAR(40)  NOT NULL,
    INDEX idx_documents_timestamp (timestamp)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS texts (
    id          BIGINT AUTO_INCREMENT PRIMARY KEY,
    document_id VARCHAR(64) NOT NULL,
    text        LONGTEXT    NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	"CREATE TABLE IF NOT EXISTS `tables` (\n" + `    id          BIGINT AUTO_INCREMENT PRIMARY KEY,
    document_id VARCHAR(64) NOT NULL,
    table_data  LONGTEXT    NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS images (
    id          BIGINT AUTO_INCREMENT PRIMARY KEY,
    document_id VARCHAR(64) NOT NULL,
    image_path  TEXT        NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	"CREATE TABLE IF NOT EXISTS metadata (\n" + `    id          BIGINT AUTO_INCREMENT PRIMARY KEY,
    document_id VARCHAR(64)  NOT NULL,
    ` + "`key`" + `       VARCHAR(255) NOT NULL,
    value       TEXT         NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS links (
    id          BIGINT AUTO_INCREMENT PRIMARY KEY,
    document_id VARCHAR(64) NOT NULL,
    link        TEXT        NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// childTables lists the tables that hang off documents, in insert order.
var childTables = []string{"texts", "`tables`", "images", "metadata", "links"}
