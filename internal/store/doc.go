// Package store provides persistent storage for the console using SQLite.
//
// # Architecture
//
// The store package is split into narrow interfaces that services depend on:
//
//   - TemplateStore: Prompt templates with their variable registries
//   - CategoryStore: Template categories
//   - SettingsStore: Singleton JSON documents (system prompt, formatting, branding)
//   - ProviderStore: AI model providers
//   - FollowUpStore: Ordered follow-up suggestions
//   - KnowledgeStore: Knowledge-base resources and ingested directory documents
//   - AdminStore: Console operators and their roles
//   - AuditStore: Append-only change log
//
// SQLiteStore implements all of them; Store is the union.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go) with foreign keys on and WAL
// mode for file databases. Timestamps are stored as RFC3339 UTC strings.
// Column additions for existing databases are applied by runMigrations.
//
// # Errors
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicate: A unique name is already taken
//   - ErrCategoryInUse: A category still has templates
//   - ErrAdminUserNotFound, ErrUsernameExists: Admin user lookups and creation
//
// # Testing
//
// Tests open a real database in t.TempDir(); NewSQLiteStore(":memory:") works
// for throwaway stores.
package store
