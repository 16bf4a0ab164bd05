package models

import (
	"time"

	"github.com/maheshrc27/adpulse/pkg/tagparser"
)

type NameMapping struct {
	AccountID  string    `db:"account_id" json:"account_id"`
	UniqueCode string    `db:"unique_code" json:"unique_code"`
	AdType     string    `db:"ad_type" json:"ad_type"`
	Person     string    `db:"person" json:"person"`
	Style      string    `db:"style" json:"style"`
	Product    string    `db:"product" json:"product"`
	Hook       string    `db:"hook" json:"hook"`
	Theme      string    `db:"theme" json:"theme"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

func (m *NameMapping) Tags() tagparser.Tags {
	return tagparser.Tags{
		UniqueCode: m.UniqueCode,
		AdType:     m.AdType,
		Person:     m.Person,
		Style:      m.Style,
		Product:    m.Product,
		Hook:       m.Hook,
		Theme:      m.Theme,
	}
}

func MappingTable(mappings []*NameMapping) tagparser.MappingTable {
	table := make(tagparser.MappingTable, len(mappings))
	for _, m := range mappings {
		table[m.UniqueCode] = m.Tags()
	}
	return table
}
