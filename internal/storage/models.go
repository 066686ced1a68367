package storage

import (
	"database/sql"
)

type Archive struct {
	MonthKey   string
	FilePath   string
	ArchivedAt string
}

type Entry struct {
	ID        string
	EntryDate string
	MonthKey  string
	Title     string
	Distance  string
	Notes     sql.NullString
	CreatedAt string
}

type InvoiceSetting struct {
	Key   string
	Value string
}
