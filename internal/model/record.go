package model

import "time"

// Record is the flat export/import form of an asset used for backup and restore.
//
// nolint:govet // fieldalignment struct is easier to read in the current format
type Record struct {
	ID          string                  `json:"id" yaml:"id"`
	Status      Status                  `json:"status" yaml:"status"`
	Type        Type                    `json:"type" yaml:"type"`
	Subtype     string                  `json:"subtype" yaml:"subtype"`
	Priority    int                     `json:"priority" yaml:"priority"`
	Parent      string                  `json:"parent" yaml:"parent"`
	Linked      []Link                  `json:"linked" yaml:"linked"`
	Tag         string                  `json:"tag" yaml:"tag"`
	SecondaryID string                  `json:"id_secondary" yaml:"id_secondary"`
	Ext         map[string]ExtAttribute `json:"ext" yaml:"ext"`
}

// ExportRecord returns the export record for an asset.
func ExportRecord(a *Asset) Record {
	r := Record{
		ID:          a.Name,
		Status:      a.Status,
		Type:        a.Type,
		Subtype:     a.Subtype,
		Priority:    a.Priority,
		Parent:      a.Parent,
		Linked:      append([]Link{}, a.Links...),
		Tag:         a.AssetTag,
		SecondaryID: a.SecondaryID,
		Ext:         make(map[string]ExtAttribute, len(a.Ext)),
	}

	for k, v := range a.Ext {
		r.Ext[k] = v
	}

	return r
}

// ImportRecord returns the asset described by the record.
func ImportRecord(r *Record) *Asset {
	a := &Asset{
		Name:        r.ID,
		Status:      r.Status,
		Type:        r.Type,
		Subtype:     r.Subtype,
		Priority:    r.Priority,
		Parent:      r.Parent,
		Links:       append([]Link{}, r.Linked...),
		AssetTag:    r.Tag,
		SecondaryID: r.SecondaryID,
		Ext:         make(ExtMap, len(r.Ext)),
	}

	for k, v := range r.Ext {
		a.Ext[k] = v
	}

	return a
}

// Operation is an asset change kind published as an event.
type Operation string

const (
	OperationCreate     Operation = "create"
	OperationUpdate     Operation = "update"
	OperationDelete     Operation = "delete"
	OperationActivate   Operation = "activate"
	OperationDeactivate Operation = "deactivate"
)

// Event is published after an asset change is committed.
type Event struct {
	Operation Operation `json:"operation"`
	Asset     Record    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent returns an event for the asset.
func NewEvent(op Operation, a *Asset) *Event {
	return &Event{Operation: op, Asset: ExportRecord(a), Timestamp: time.Now()}
}
