// Package database opens the PostgreSQL pool used by the work journal.
package database
