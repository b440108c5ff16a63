package model

import (
	"strings"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
)

// Type is the asset classification.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeDatacenter
	TypeRoom
	TypeRow
	TypeRack
	TypeGroup
	TypeDevice
	TypeCluster
	TypeHypervisor
	TypeVirtualMachine
	TypeStorageService
	TypeVApp
	TypeConnector
	TypeServer
	TypePlanner
	TypePlan
)

var typeNames = map[Type]string{
	TypeUnknown:        "unknown",
	TypeDatacenter:     "datacenter",
	TypeRoom:           "room",
	TypeRow:            "row",
	TypeRack:           "rack",
	TypeGroup:          "group",
	TypeDevice:         "device",
	TypeCluster:        "cluster",
	TypeHypervisor:     "hypervisor",
	TypeVirtualMachine: "virtual-machine",
	TypeStorageService: "storage-service",
	TypeVApp:           "vapp",
	TypeConnector:      "connector",
	TypeServer:         "server",
	TypePlanner:        "planner",
	TypePlan:           "plan",
}

var ErrInvalidType = errors.New("invalid asset type")

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return typeNames[TypeUnknown]
}

// ParseType returns the Type for the given name.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if t != TypeUnknown && strings.EqualFold(name, s) {
			return t, nil
		}
	}

	return TypeUnknown, errors.Wrap(ErrInvalidType, s)
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(b []byte) error {
	if len(b) == 0 || string(b) == typeNames[TypeUnknown] {
		*t = TypeUnknown
		return nil
	}

	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// Class groups asset types that share lifecycle rules.
type Class uint8

const (
	ClassOther Class = iota
	ClassDatacenter
	ClassGroup
	ClassDevice
)

func (c Class) String() string {
	switch c {
	case ClassDatacenter:
		return "datacenter"
	case ClassGroup:
		return "group"
	case ClassDevice:
		return "device"
	default:
		return "other"
	}
}

// Class returns the lifecycle class of the asset type.
func (t Type) Class() Class {
	switch t {
	case TypeDatacenter, TypeRoom, TypeRow, TypeRack:
		return ClassDatacenter
	case TypeGroup:
		return ClassGroup
	case TypeDevice:
		return ClassDevice
	default:
		return ClassOther
	}
}

// DatacenterClassTypes are the types counted when looking for the last datacenter.
func DatacenterClassTypes() []Type {
	return []Type{TypeDatacenter, TypeRoom, TypeRow, TypeRack}
}

// Asset subtypes
const (
	SubtypeNA             = "N_A"
	SubtypeUPS            = "ups"
	SubtypeGenset         = "genset"
	SubtypeEPDU           = "epdu"
	SubtypePDU            = "pdu"
	SubtypeServer         = "server"
	SubtypeFeed           = "feed"
	SubtypeSTS            = "sts"
	SubtypeSwitch         = "switch"
	SubtypeStorage        = "storage"
	SubtypeVirtual        = "vm"
	SubtypeRouter         = "router"
	SubtypeRackController = "rackcontroller"
	SubtypeSensor         = "sensor"
	SubtypeSensorGPIO     = "sensorgpio"
	SubtypeGPO            = "gpo"
	SubtypeAppliance      = "appliance"
	SubtypeChassis        = "chassis"
	SubtypePatchPanel     = "patchpanel"
	SubtypeOther          = "other"
)

// Subtypes returns the known asset subtypes.
func Subtypes() []string {
	return []string{
		SubtypeNA, SubtypeUPS, SubtypeGenset, SubtypeEPDU, SubtypePDU, SubtypeServer,
		SubtypeFeed, SubtypeSTS, SubtypeSwitch, SubtypeStorage, SubtypeVirtual, SubtypeRouter,
		SubtypeRackController, SubtypeSensor, SubtypeSensorGPIO, SubtypeGPO, SubtypeAppliance,
		SubtypeChassis, SubtypePatchPanel, SubtypeOther,
	}
}

// IsKnownSubtype returns true when s is one of the known subtypes.
func IsKnownSubtype(s string) bool {
	for _, st := range Subtypes() {
		if strings.EqualFold(st, s) {
			return true
		}
	}

	return false
}

// PowerDeviceSubtypes are the subtypes counted as power devices for activation quotas.
func PowerDeviceSubtypes() []string {
	return []string{SubtypeEPDU, SubtypePDU, SubtypeUPS, SubtypeSTS, SubtypeGenset}
}

// Status is the asset activation status.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusActive
	StatusNonactive
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusNonactive:
		return "nonactive"
	default:
		return "unknown"
	}
}

// ParseStatus returns the Status for the given string, StatusUnknown when it is not recognized.
func ParseStatus(s string) Status {
	switch strings.ToLower(s) {
	case "active":
		return StatusActive
	case "nonactive":
		return StatusNonactive
	default:
		return StatusUnknown
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(b []byte) error {
	*s = ParseStatus(string(b))
	return nil
}

// Extended attribute keys the engine reads or stamps.
const (
	ExtUUID         = "uuid"
	ExtCreateTS     = "create_ts"
	ExtUpdateTS     = "update_ts"
	ExtName         = "name"
	ExtManufacturer = "manufacturer"
	ExtModel        = "model"
	ExtSerial       = "serial_no"
	ExtLogicalAsset = "logical_asset"
)

// ExtAttribute is an extended attribute value.
type ExtAttribute struct {
	Value    string `json:"value" yaml:"value"`
	ReadOnly bool   `json:"readOnly" yaml:"readOnly"`
}

// ExtMap maps extended attribute keys to their values.
type ExtMap map[string]ExtAttribute

// Link is a directed connection from Source to the asset holding the link.
type Link struct {
	Source     string `json:"source" yaml:"source"`
	SourcePort string `json:"src_out" yaml:"src_out"`
	DestPort   string `json:"dest_in" yaml:"dest_in"`
	Type       int    `json:"link_type" yaml:"link_type"`
}

// Asset holds attributes of an inventory asset.
//
// nolint:govet // fieldalignment struct is easier to read in the current format
type Asset struct {
	// ID is the storage row identifier, zero until the asset is persisted.
	ID int64

	// Name is the unique internal name.
	Name string

	Type    Type
	Subtype string
	Status  Status

	Priority int

	// Parent is the internal name of the containing asset, empty for roots.
	Parent string

	SecondaryID string
	AssetTag    string

	Ext ExtMap

	// Links whose destination is this asset.
	Links []Link
}

// NewAsset returns an asset with the default priority and a nonactive status.
func NewAsset(t Type, subtype string) *Asset {
	return &Asset{
		Type:     t,
		Subtype:  subtype,
		Status:   StatusNonactive,
		Priority: 5,
		Ext:      ExtMap{},
	}
}

// SetExt sets an extended attribute.
func (a *Asset) SetExt(key, value string, readOnly bool) {
	if a.Ext == nil {
		a.Ext = ExtMap{}
	}

	a.Ext[key] = ExtAttribute{Value: value, ReadOnly: readOnly}
}

// ExtValue returns the value of an extended attribute.
func (a *Asset) ExtValue(key string) (string, bool) {
	attr, exists := a.Ext[key]
	return attr.Value, exists
}

// Manufacturer returns the manufacturer ext attribute.
func (a *Asset) Manufacturer() string {
	v, _ := a.ExtValue(ExtManufacturer)
	return v
}

func (a *Asset) Model() string {
	v, _ := a.ExtValue(ExtModel)
	return v
}

func (a *Asset) Serial() string {
	v, _ := a.ExtValue(ExtSerial)
	return v
}

// IsVirtual returns true for assets that are not physical devices.
func (a *Asset) IsVirtual() bool {
	switch a.Type {
	case TypeCluster, TypeHypervisor, TypeVirtualMachine, TypeStorageService,
		TypeVApp, TypeConnector, TypeServer, TypePlanner, TypePlan:
		return true
	default:
		return false
	}
}

// HasLogicalAsset returns true when a sensor refers to this asset.
func (a *Asset) HasLogicalAsset() bool {
	_, exists := a.Ext[ExtLogicalAsset]
	return exists
}

// Clone returns a deep copy of the asset.
func (a *Asset) Clone() *Asset {
	dst := &Asset{}

	if err := copier.CopyWithOption(dst, a, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched types, which can't happen here
		panic(err)
	}

	return dst
}
